package reqqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustReq(t *testing.T, tenant string, bid int, arrival time.Time) Request {
	t.Helper()
	r, err := NewRequest(Params{TenantID: tenant, PromptTokens: 100, PriorityBid: bid, ArrivalTime: arrival})
	require.NoError(t, err)
	return r
}

func TestQueue_PopMax_HighestBidFirst(t *testing.T) {
	// GIVEN entries with bids 1, 10, 5 pushed in that order
	q := New()
	base := time.Unix(0, 0)
	q.Push(NewEntry(mustReq(t, "a", 1, base)))
	q.Push(NewEntry(mustReq(t, "a", 10, base.Add(time.Second))))
	q.Push(NewEntry(mustReq(t, "a", 5, base.Add(2*time.Second))))

	// WHEN popped three times
	// THEN bid 10 comes first, then 5, then 1
	order := []int{}
	for i := 0; i < 3; i++ {
		e, ok := q.PopMax()
		require.True(t, ok)
		order = append(order, e.Request.PriorityBid)
	}
	require.Equal(t, []int{10, 5, 1}, order)
}

func TestQueue_PopMax_TiesByArrivalTime(t *testing.T) {
	// GIVEN two equal-bid entries, B arriving after A
	q := New()
	base := time.Unix(0, 0)
	reqA := mustReq(t, "a", 5, base)
	reqB := mustReq(t, "a", 5, base.Add(time.Second))
	q.Push(NewEntry(reqB))
	q.Push(NewEntry(reqA))

	// WHEN popped
	first, ok := q.PopMax()
	require.True(t, ok)
	second, ok := q.PopMax()
	require.True(t, ok)

	// THEN the older arrival (A) pops first
	require.Equal(t, reqA.ID, first.Request.ID)
	require.Equal(t, reqB.ID, second.Request.ID)
}

func TestQueue_PopMax_Empty_ReturnsFalse(t *testing.T) {
	q := New()
	_, ok := q.PopMax()
	require.False(t, ok)
}

func TestQueue_Len(t *testing.T) {
	q := New()
	require.Equal(t, 0, q.Len())
	q.Push(NewEntry(mustReq(t, "a", 1, time.Unix(0, 0))))
	require.Equal(t, 1, q.Len())
}

func TestQueue_DrainUpTo_CapsAtN(t *testing.T) {
	q := New()
	base := time.Unix(0, 0)
	for i := 0; i < 20; i++ {
		q.Push(NewEntry(mustReq(t, "a", 1, base.Add(time.Duration(i)*time.Millisecond))))
	}
	drained := q.DrainUpTo(16)
	require.Len(t, drained, 16)
	require.Equal(t, 4, q.Len())
}

func TestQueue_DrainUpTo_StopsWhenEmpty(t *testing.T) {
	q := New()
	q.Push(NewEntry(mustReq(t, "a", 1, time.Unix(0, 0))))
	drained := q.DrainUpTo(16)
	require.Len(t, drained, 1)
}

func TestQueue_PopWait_UnblocksOnPush(t *testing.T) {
	q := New()
	done := make(chan Entry, 1)
	go func() {
		e, ok := q.PopWait(func() bool { return false })
		if ok {
			done <- e
		}
	}()

	time.Sleep(10 * time.Millisecond) // let the goroutine reach Wait()
	req := mustReq(t, "a", 3, time.Unix(0, 0))
	q.Push(NewEntry(req))

	select {
	case e := <-done:
		require.Equal(t, req.ID, e.Request.ID)
	case <-time.After(time.Second):
		t.Fatal("PopWait did not unblock after Push")
	}
}

func TestQueue_PopWait_UnblocksOnClose(t *testing.T) {
	q := New()
	closed := make(chan struct{})
	result := make(chan bool, 1)
	go func() {
		_, ok := q.PopWait(func() bool {
			select {
			case <-closed:
				return true
			default:
				return false
			}
		})
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	close(closed)
	q.Broadcast()

	select {
	case ok := <-result:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("PopWait did not unblock on close")
	}
}
