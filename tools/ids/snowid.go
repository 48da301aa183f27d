package ids

import (
	"sync"
	"time"
)

// 实体ID和事件ID共用一个雪花源。
// 布局 41/10/12：毫秒时间戳 | 节点 | 毫秒内序列。
// 同节点取号严格递增，事件按 ID 排序即按提交序排序。

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = (1 << nodeBits) - 1
	seqMask  = (1 << seqBits) - 1
	tsMask   = (1 << 41) - 1
)

// 2020-01-01 UTC，41 bit 毫秒够用到 2089
var epochMS = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type source struct {
	mu     sync.Mutex
	node   int64
	seq    int64
	lastMS int64
}

var (
	src     *source
	srcOnce sync.Once
)

func get() *source {
	srcOnce.Do(func() { src = &source{node: 1} })
	return src
}

// Generate 取下一个ID
func Generate() int64 {
	return get().next()
}

// SetNodeID 多实例部署时每个节点配不同的 NODE_ID（0~1023），启动时调一次
func SetNodeID(nodeID int64) {
	s := get()
	s.mu.Lock()
	defer s.mu.Unlock()
	if nodeID < 0 || nodeID > maxNode {
		nodeID = 1
	}
	s.node = nodeID
}

func (s *source) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < s.lastMS {
			// 时钟回拨：宁可阻塞也不发回头的ID
			time.Sleep(time.Duration(s.lastMS-now) * time.Millisecond)
			continue
		}
		if now == s.lastMS {
			s.seq = (s.seq + 1) & seqMask
			if s.seq == 0 {
				// 本毫秒 4096 个号用光，自旋到下一毫秒
				for now <= s.lastMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			s.seq = 0
		}
		s.lastMS = now

		ts := (now - epochMS) & tsMask
		return ts<<(nodeBits+seqBits) | s.node<<seqBits | s.seq
	}
}
