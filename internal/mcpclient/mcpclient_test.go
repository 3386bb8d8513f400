package mcpclient

import (
	"bufio"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	closed atomic.Bool
}

func (f *fakeCaller) CallTool(context.Context, CallRequest) (CallResponse, error) {
	return CallResponse{Result: json.RawMessage(`"ok"`)}, nil
}

func (f *fakeCaller) Close() error {
	f.closed.Store(true)
	return nil
}

func TestNormalizeToolResultPlainText(t *testing.T) {
	text := "hello"
	result := toolsCallResult{Content: []contentItem{{Type: "text", Text: &text}}}
	resp, err := normalizeToolResult(result)
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(resp.Result))
	assert.Nil(t, resp.Structured)
}

func TestNormalizeToolResultStructuredJSON(t *testing.T) {
	text := `{"a":1}`
	mime := "application/json"
	result := toolsCallResult{Content: []contentItem{{Type: "text", Text: &text, MimeType: &mime}}}
	resp, err := normalizeToolResult(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(resp.Result))
	assert.JSONEq(t, `{"a":1}`, string(resp.Structured))
}

func TestNormalizeToolResultEmptyErrors(t *testing.T) {
	_, err := normalizeToolResult(toolsCallResult{})
	assert.Error(t, err)
}

func TestReadFrameParsesContentLength(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":{}}`
	raw := "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
	reader := bufio.NewReader(strings.NewReader(raw))
	frame, err := readFrame(reader)
	require.NoError(t, err)
	assert.Equal(t, body, string(frame))
}

func TestReadFrameMissingHeaderErrors(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("\r\n{}"))
	_, err := readFrame(reader)
	assert.Error(t, err)
}

func TestCacheGetDialsOnce(t *testing.T) {
	var dials int32
	cache, err := NewCache(4, func(context.Context, ServerSpec) (Caller, error) {
		atomic.AddInt32(&dials, 1)
		return &fakeCaller{}, nil
	})
	require.NoError(t, err)

	spec := ServerSpec{Name: "files"}
	c1, err := cache.Get(context.Background(), spec)
	require.NoError(t, err)
	c2, err := cache.Get(context.Background(), spec)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
}

func TestCacheCloseClosesCallers(t *testing.T) {
	fc := &fakeCaller{}
	cache, err := NewCache(4, func(context.Context, ServerSpec) (Caller, error) {
		return fc, nil
	})
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), ServerSpec{Name: "files"})
	require.NoError(t, err)
	require.NoError(t, cache.Close())
	assert.True(t, fc.closed.Load())
}
