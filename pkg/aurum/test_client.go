package aurum

import (
	"context"
	"sync"
	"time"
)

// TestClient is an in-memory device. Every UpdateData call consumes the next
// queued result; when the queue is empty the last payload is served again.
type TestClient struct {
	mu          sync.Mutex
	ConnectErr  error
	Unreachable bool
	Delay       time.Duration
	results     []TestResult
	data        NumberedData
	connects    int
	updates     int
}

type TestResult struct {
	Data NumberedData
	Err  error
}

func NewTestClient(results ...TestResult) *TestClient {
	return &TestClient{results: results, data: NumberedData{}}
}

// Push queues more results, e.g. from a test while the client is in use.
func (c *TestClient) Push(results ...TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
}

func (c *TestClient) Connect(ctx context.Context) (bool, error) {
	c.mu.Lock()
	c.connects++
	err, unreachable := c.ConnectErr, c.Unreachable
	c.mu.Unlock()
	if err != nil {
		return false, err
	}
	return !unreachable, nil
}

func (c *TestClient) UpdateData(ctx context.Context) error {
	c.mu.Lock()
	delay := c.Delay
	c.updates++
	var next *TestResult
	if len(c.results) > 0 {
		next = &c.results[0]
		c.results = c.results[1:]
	}
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if next == nil {
		return nil
	}
	if next.Err != nil {
		return next.Err
	}
	c.mu.Lock()
	c.data = next.Data.Copy()
	c.mu.Unlock()
	return nil
}

func (c *TestClient) GetAurumData() NumberedData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.Copy()
}

func (c *TestClient) SetUnreachable(unreachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Unreachable = unreachable
}

func (c *TestClient) SetConnectErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ConnectErr = err
}

func (c *TestClient) SetDelay(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Delay = delay
}

func (c *TestClient) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *TestClient) Updates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates
}
