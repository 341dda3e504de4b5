package notify

import "testing"

func TestPublishReachesSubscribers(t *testing.T) {
	var h Hub[int]
	a, cancelA := h.Subscribe()
	b, cancelB := h.Subscribe()
	defer cancelA()
	defer cancelB()

	h.Publish(7)

	if got := <-a; got != 7 {
		t.Errorf("a got %d", got)
	}
	if got := <-b; got != 7 {
		t.Errorf("b got %d", got)
	}
}

func TestCancelClosesAndRemoves(t *testing.T) {
	var h Hub[string]
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
	h.Publish("after")
}

func TestPublishDoesNotBlockOnFullBuffer(t *testing.T) {
	var h Hub[int]
	_, cancel := h.Subscribe()
	defer cancel()
	for i := 0; i < bufferSize*3; i++ {
		h.Publish(i)
	}
}
