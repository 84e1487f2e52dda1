package msg

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"nonalt/internal/services"
)

const dialTimeout = 2 * time.Second

// Client talks to a running agent over its unix socket.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the agent socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, dialTimeout)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "msg", "dial", "agent not reachable", err)
	}
	return &Client{rpc: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) call(method string, req, resp any) error {
	if err := c.rpc.Call("Nonalt."+method, req, resp); err != nil {
		return services.Wrap(services.ErrTransient, "msg", method, "call failed", err)
	}
	return nil
}

// PreflightOnPost runs matching and dedup for one feed post.
func (c *Client) PreflightOnPost(req PreflightOnPostRequest) (PreflightOnPostResponse, error) {
	var resp PreflightOnPostResponse
	err := c.call("PreflightOnPost", req, &resp)
	return resp, err
}

// QueueForReblogging appends a post to the pending queue.
func (c *Client) QueueForReblogging(req QueueForRebloggingRequest) (QueueForRebloggingResponse, error) {
	var resp QueueForRebloggingResponse
	err := c.call("QueueForReblogging", req, &resp)
	return resp, err
}

// DequeueForReblogging removes the queue head after a confirmed repost.
func (c *Client) DequeueForReblogging(req DequeueForRebloggingRequest) (DequeueForRebloggingResponse, error) {
	var resp DequeueForRebloggingResponse
	err := c.call("DequeueForReblogging", req, &resp)
	return resp, err
}

// QueueList returns pending entries in FIFO order.
func (c *Client) QueueList() (QueueListResponse, error) {
	var resp QueueListResponse
	err := c.call("QueueList", QueueListRequest{}, &resp)
	return resp, err
}

// QueueClear removes every pending entry.
func (c *Client) QueueClear() (QueueClearResponse, error) {
	var resp QueueClearResponse
	err := c.call("QueueClear", QueueClearRequest{}, &resp)
	return resp, err
}

// LoadPostImages returns the post-to-images map.
func (c *Client) LoadPostImages() (LoadPostImagesResponse, error) {
	var resp LoadPostImagesResponse
	err := c.call("LoadPostImages", LoadPostImagesRequest{}, &resp)
	return resp, err
}

// ClearPostImages drops the post-to-images map.
func (c *Client) ClearPostImages() (ClearPostImagesResponse, error) {
	var resp ClearPostImagesResponse
	err := c.call("ClearPostImages", ClearPostImagesRequest{}, &resp)
	return resp, err
}

// HistoryList returns completed-repost history, newest first.
func (c *Client) HistoryList() (HistoryListResponse, error) {
	var resp HistoryListResponse
	err := c.call("HistoryList", HistoryListRequest{}, &resp)
	return resp, err
}

// ScanStart begins a scan session.
func (c *Client) ScanStart() (ScanStartResponse, error) {
	var resp ScanStartResponse
	err := c.call("ScanStart", ScanStartRequest{}, &resp)
	return resp, err
}

// ScanStop cancels the running scan session.
func (c *Client) ScanStop() (ScanStopResponse, error) {
	var resp ScanStopResponse
	err := c.call("ScanStop", ScanStopRequest{}, &resp)
	return resp, err
}

// Reblog executes the repost for the queue head.
func (c *Client) Reblog() (ReblogResponse, error) {
	var resp ReblogResponse
	err := c.call("Reblog", ReblogRequest{}, &resp)
	return resp, err
}

// Status returns combined agent status.
func (c *Client) Status() (StatusResponse, error) {
	var resp StatusResponse
	err := c.call("Status", StatusRequest{}, &resp)
	return resp, err
}
