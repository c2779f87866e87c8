package syncgroup

import (
	"sync/atomic"
	"testing"
)

func TestSyncGroup_RunAndWait(t *testing.T) {
	sg := NewSyncGroup()
	var n atomic.Int32
	for i := 0; i < 5; i++ {
		sg.Add(func() { n.Add(1) })
	}
	sg.Run()
	if panics := sg.WaitAndClear(); len(panics) != 0 {
		t.Fatalf("不应有 panic: %v", panics)
	}
	if n.Load() != 5 {
		t.Fatalf("期望运行 5 次，得到 %d", n.Load())
	}

	// 再次 Run 不应重复执行已运行过的函数
	sg.Run()
	sg.WaitAndClear()
	if n.Load() != 5 {
		t.Fatalf("重复 Run 不应重复执行，得到 %d", n.Load())
	}
}

func TestSyncGroup_RecoversPanic(t *testing.T) {
	sg := NewSyncGroup()
	var ok atomic.Bool
	sg.Add(func() { panic("chunk exploded") })
	sg.Add(func() { ok.Store(true) })
	sg.Run()

	panics := sg.WaitAndClear()
	if len(panics) != 1 {
		t.Fatalf("期望捕获 1 个 panic，得到 %d", len(panics))
	}
	if !ok.Load() {
		t.Fatal("其他任务应正常完成")
	}
}
