package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_NotifyReachesSubscriber(t *testing.T) {
	n := NewNotifier()
	unsub, ch := n.Subscribe("analysis_1")
	defer unsub()

	n.Notify("analysis_1")

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected notification")
	}
}

func TestNotifier_IgnoresOtherJobs(t *testing.T) {
	n := NewNotifier()
	unsub, ch := n.Subscribe("analysis_1")
	defer unsub()

	n.Notify("analysis_2")

	select {
	case <-ch:
		t.Fatal("unexpected notification")
	default:
	}
}

func TestNotifier_CoalescesPendingSignals(t *testing.T) {
	n := NewNotifier()
	unsub, ch := n.Subscribe("analysis_1")
	defer unsub()

	n.Notify("analysis_1")
	n.Notify("analysis_1")

	<-ch
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	n := NewNotifier()
	unsub, ch := n.Subscribe("analysis_1")
	n.Notify("analysis_1")
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	assert.NotPanics(t, func() { n.Notify("analysis_1") })
}

func TestNotifier_StopAll(t *testing.T) {
	n := NewNotifier()
	_, a := n.Subscribe("a")
	_, b := n.Subscribe("b")

	n.StopAll()

	_, okA := <-a
	_, okB := <-b
	assert.False(t, okA)
	assert.False(t, okB)
}
