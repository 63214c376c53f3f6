package nvramrpc

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/internal/storage/memory"
	"github.com/ezbox-project/go-ezcfg/pkg/httpmsg"
	"github.com/ezbox-project/go-ezcfg/pkg/soap"
	"github.com/ezbox-project/go-ezcfg/pkg/soaphttp"
)

const envelopeOpen = `<?xml version="1.0" encoding="utf-8"?>` +
	`<env:Envelope xmlns:env="http://www.w3.org/2003/05/soap-envelope"><env:Body>`
const envelopeClose = `</env:Body></env:Envelope>`

// rejectingStore fails Set for one name.
type rejectingStore struct {
	storage.Store
	reject string
}

func (s *rejectingStore) Set(ctx context.Context, name, value string) error {
	if name == s.reject {
		return storage.ErrNoSpace
	}
	return s.Store.Set(ctx, name, value)
}

// failingStore fails List and Commit with a backend error.
type failingStore struct {
	storage.Store
}

func (failingStore) List(context.Context) ([]storage.Entry, error) {
	return nil, storage.BackendError("list", errors.New("connection reset"))
}

func (failingStore) Commit(context.Context) error {
	return storage.BackendError("commit", errors.New("disk full"))
}

type recorded struct {
	op string
	ok bool
}

type recorderFunc func(op string, ok bool)

func (f recorderFunc) RecordRPC(op string, ok bool) { f(op, ok) }

func newMemoryStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.NewStore(4096, "")
	require.NoError(t, err)
	return s
}

func request(t *testing.T, method, uri, body string) *soaphttp.Message {
	t.Helper()
	msg := soaphttp.New(soap.DefaultMaxElements)
	raw := method + " " + uri + " HTTP/1.1\r\nHost: 192.168.1.1\r\n\r\n"
	require.NoError(t, msg.ParseRequest([]byte(raw)))
	msg.SetBody([]byte(body))
	return msg
}

func batch(op string, entries ...storage.Entry) string {
	var sb strings.Builder
	sb.WriteString(envelopeOpen)
	sb.WriteString("<nvns:" + op + ` xmlns:nvns="http://www.ezbox.org/nvram">`)
	for _, e := range entries {
		sb.WriteString("<nvram><name>" + e.Name + "</name><value>" + e.Value + "</value></nvram>")
	}
	sb.WriteString("</nvns:" + op + ">")
	sb.WriteString(envelopeClose)
	return sb.String()
}

func handle(t *testing.T, store storage.Store, msg *soaphttp.Message) string {
	t.Helper()
	h := NewHandler(store, zap.NewNop())
	require.NoError(t, h.Handle(context.Background(), msg))

	assert.Equal(t, 200, msg.HTTP.Status())
	assert.Equal(t, httpmsg.StateResponse, msg.HTTP.State())
	ct, _ := msg.HTTP.Header("content-type")
	assert.Equal(t, soaphttp.ContentType, ct)
	assert.Equal(t, len(msg.HTTP.Body()), msg.HTTP.ContentLength())

	body := string(msg.HTTP.Body())
	assert.True(t, strings.HasPrefix(body, soap.Prologue+"\n"))
	return body
}

func TestGet_ExistingKey(t *testing.T) {
	store := newMemoryStore(t)
	require.NoError(t, store.Set(context.Background(), "lan_ipaddr", "192.168.1.1"))

	body := handle(t, store, request(t, "GET", BaseURI+"/getNvram?name=lan_ipaddr", ""))

	assert.Contains(t, body, `<nvns:getNvramResponse xmlns:nvns="http://www.ezbox.org/nvram">`)
	assert.Contains(t, body, "<Name>lan_ipaddr</Name><Value>192.168.1.1</Value>")
	assert.NotContains(t, body, "Fault")
}

func TestGet_MissingKeyIsFaultWith200(t *testing.T) {
	body := handle(t, newMemoryStore(t), request(t, "GET", BaseURI+"/getNvram?name=absent", ""))

	assert.Contains(t, body, "<env:Fault><env:Code><env:Value>env:Sender</env:Value></env:Code>")
	assert.Contains(t, body, `<env:Text xml:lang="en">invalid nvram name</env:Text>`)
	assert.NotContains(t, body, "getNvramResponse")
}

func TestGet_WithoutNameQuery(t *testing.T) {
	store := newMemoryStore(t)
	require.NoError(t, store.Set(context.Background(), "x", "1"))

	body := handle(t, store, request(t, "GET", BaseURI+"/getNvram&name=x", ""))
	assert.Contains(t, body, "invalid nvram name")
}

func TestSet(t *testing.T) {
	store := newMemoryStore(t)
	payload := envelopeOpen + "<nvns:setNvram><name>hostname</name><value>ezbox</value></nvns:setNvram>" + envelopeClose

	body := handle(t, store, request(t, "POST", BaseURI+"/setNvram", payload))
	assert.Contains(t, body, "<nvns:setNvramResponse")
	assert.Contains(t, body, "<Result>OK</Result>")

	v, err := store.Get(context.Background(), "hostname")
	require.NoError(t, err)
	assert.Equal(t, "ezbox", v)
}

func TestSet_MissingValue(t *testing.T) {
	store := newMemoryStore(t)
	payload := envelopeOpen + "<setNvram><name>hostname</name></setNvram>" + envelopeClose

	body := handle(t, store, request(t, "POST", BaseURI+"/setNvram", payload))
	assert.Contains(t, body, "invalid nvram value")

	_, err := store.Get(context.Background(), "hostname")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSet_UnparsableBody(t *testing.T) {
	body := handle(t, newMemoryStore(t), request(t, "POST", BaseURI+"/setNvram", "<not-closed>"))
	assert.Contains(t, body, "invalid nvram value")
}

func TestUnset(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "wan_proto", "dhcp"))

	body := handle(t, store, request(t, "GET", BaseURI+"/unsetNvram?name=wan_proto", ""))
	assert.Contains(t, body, "<nvns:unsetNvramResponse")
	assert.Contains(t, body, "<Result>OK</Result>")
	_, err := store.Get(ctx, "wan_proto")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	body = handle(t, store, request(t, "GET", BaseURI+"/unsetNvram?name=wan_proto", ""))
	assert.Contains(t, body, "invalid nvram name")
}

func TestUnset_OffsetIsNotChecked(t *testing.T) {
	store := newMemoryStore(t)
	require.NoError(t, store.Set(context.Background(), "abc", "1"))

	// any six characters are skipped
	body := handle(t, store, request(t, "GET", BaseURI+"/unsetNvram&key=:abc", ""))
	assert.Contains(t, body, "<Result>OK</Result>")
}

func TestSetMulti(t *testing.T) {
	entries := []storage.Entry{{Name: "A", Value: "1"}, {Name: "B", Value: "2"}}

	t.Run("store rejects B", func(t *testing.T) {
		base := newMemoryStore(t)
		store := &rejectingStore{Store: base, reject: "B"}

		body := handle(t, store, request(t, "POST", BaseURI+"/setMultiNvram", batch(OpSetMulti, entries...)))
		assert.Contains(t, body, "<env:Fault>")
		assert.Contains(t, body, "invalid nvram value")

		// earlier entries stay applied
		v, err := base.Get(context.Background(), "A")
		require.NoError(t, err)
		assert.Equal(t, "1", v)
	})

	t.Run("store accepts both", func(t *testing.T) {
		store := newMemoryStore(t)

		body := handle(t, store, request(t, "POST", BaseURI+"/setMultiNvram", batch(OpSetMulti, entries...)))
		assert.Contains(t, body, "<nvns:setMultiNvramResponse")
		assert.Contains(t, body, "<Result>OK</Result>")

		list, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Equal(t, entries, list)
	})

	t.Run("malformed entry aborts whole batch", func(t *testing.T) {
		store := newMemoryStore(t)
		payload := envelopeOpen + "<setMultiNvram>" +
			"<nvram><name>A</name><value>1</value></nvram>" +
			"<nvram><name>B</name></nvram>" +
			"</setMultiNvram>" + envelopeClose

		body := handle(t, store, request(t, "POST", BaseURI+"/setMultiNvram", payload))
		assert.Contains(t, body, "invalid nvram value")

		list, err := store.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		body := handle(t, newMemoryStore(t), request(t, "GET", BaseURI+"/listNvram", ""))
		assert.Contains(t, body, `<nvns:listNvramResponse xmlns:nvns="http://www.ezbox.org/nvram"></nvns:listNvramResponse>`)
		assert.NotContains(t, body, "<nvram>")
	})

	t.Run("rows", func(t *testing.T) {
		store := newMemoryStore(t)
		ctx := context.Background()
		require.NoError(t, store.Set(ctx, "b", "2"))
		require.NoError(t, store.Set(ctx, "a", "1"))
		require.NoError(t, store.Set(ctx, "c", "x&y"))

		body := handle(t, store, request(t, "GET", BaseURI+"/listNvram", ""))
		assert.Equal(t, 3, strings.Count(body, "<nvram>"))
		assert.Contains(t, body,
			"<nvram><Name>a</Name><Value>1</Value></nvram>"+
				"<nvram><Name>b</Name><Value>2</Value></nvram>"+
				"<nvram><Name>c</Name><Value>x&amp;y</Value></nvram>")
	})

	for _, n := range []int{41, 42, 50, 200} {
		t.Run("rows beyond request capacity "+strconv.Itoa(n), func(t *testing.T) {
			store, err := memory.NewStore(1<<20, "")
			require.NoError(t, err)
			ctx := context.Background()
			for i := 0; i < n; i++ {
				require.NoError(t, store.Set(ctx, "lan_opt"+strconv.Itoa(i), "value"+strconv.Itoa(i)))
			}

			body := handle(t, store, request(t, "GET", BaseURI+"/listNvram", ""))
			assert.Equal(t, n, strings.Count(body, "<nvram>"))
			assert.Contains(t, body, "<nvram><Name>lan_opt0</Name><Value>value0</Value></nvram>")
		})
	}

	t.Run("store failure", func(t *testing.T) {
		body := handle(t, failingStore{newMemoryStore(t)}, request(t, "GET", BaseURI+"/listNvram", ""))
		assert.Contains(t, body, "<env:Value>env:Receiver</env:Value>")
		assert.Contains(t, body, "nvram operation fail")
	})
}

func TestCommit(t *testing.T) {
	body := handle(t, newMemoryStore(t), request(t, "POST", BaseURI+"/commitNvram", ""))
	assert.Contains(t, body, "<nvns:commitNvramResponse")
	assert.Contains(t, body, "<Result>OK</Result>")

	body = handle(t, failingStore{newMemoryStore(t)}, request(t, "POST", BaseURI+"/commitNvram", ""))
	assert.Contains(t, body, "nvram operation fail")
}

func TestInfo(t *testing.T) {
	store := newMemoryStore(t)
	require.NoError(t, store.Set(context.Background(), "a", "1"))

	body := handle(t, store, request(t, "GET", BaseURI+"/infoNvram", ""))
	assert.Contains(t, body, "<nvram><Name>version</Name><Value>1.0</Value></nvram>")
	assert.Contains(t, body, "<nvram><Name>total_space</Name><Value>4096</Value></nvram>")
	assert.Contains(t, body, "<nvram><Name>free_space</Name><Value>4092</Value></nvram>")
	assert.Contains(t, body, "<nvram><Name>used_space</Name><Value>4</Value></nvram>")
	assert.Contains(t, body, "<nvram><Name>storage[0].backend</Name><Value>memory</Value></nvram>")
	assert.Contains(t, body, "<nvram><Name>storage[0].path</Name><Value>-</Value></nvram>")
}

func TestSockets(t *testing.T) {
	store := newMemoryStore(t)
	sock := []storage.Entry{
		{Name: "domain", Value: "inet"},
		{Name: "type", Value: "stream"},
		{Name: "protocol", Value: "soap-http"},
		{Name: "address", Value: "0.0.0.0:8880"},
	}

	body := handle(t, store, request(t, "POST", BaseURI+"/insertSocket", batch(OpInsertSocket, sock...)))
	assert.Contains(t, body, "<nvns:insertSocketResponse")
	assert.Contains(t, body, "<Result>OK</Result>")

	body = handle(t, store, request(t, "POST", BaseURI+"/insertSocket", batch(OpInsertSocket, sock...)))
	assert.Contains(t, body, "invalid nvram value")

	body = handle(t, store, request(t, "POST", BaseURI+"/removeSocket", batch(OpRemoveSocket, sock...)))
	assert.Contains(t, body, "<nvns:removeSocketResponse")

	sockets, err := storage.Sockets(context.Background(), store)
	require.NoError(t, err)
	assert.Empty(t, sockets)
}

func TestOperation_BodyFallback(t *testing.T) {
	store := newMemoryStore(t)
	payload := envelopeOpen + "<nvns:setNvram><name>x</name><value>y</value></nvns:setNvram>" + envelopeClose

	msg := request(t, "POST", BaseURI, payload)
	assert.Equal(t, OpSet, Operation(msg))

	body := handle(t, store, msg)
	assert.Contains(t, body, "<Result>OK</Result>")

	getPayload := envelopeOpen + "<getNvram><name>x</name></getNvram>" + envelopeClose
	body = handle(t, store, request(t, "POST", "/", getPayload))
	assert.Contains(t, body, "<Name>x</Name><Value>y</Value>")
}

func TestHandle_UnknownOperation(t *testing.T) {
	h := NewHandler(newMemoryStore(t), zap.NewNop())

	err := h.Handle(context.Background(), request(t, "GET", BaseURI+"/rebootDevice", ""))
	assert.ErrorIs(t, err, ErrUnknownOperation)

	err = h.Handle(context.Background(), request(t, "GET", "/index.html", ""))
	assert.ErrorIs(t, err, ErrUnknownOperation)
}

func TestHandle_RequestExceedsCapacity(t *testing.T) {
	entries := make([]storage.Entry, 50)
	for i := range entries {
		entries[i] = storage.Entry{Name: "wan_opt" + strconv.Itoa(i), Value: "1"}
	}

	for _, op := range []string{OpSetMulti, OpInsertSocket} {
		t.Run(op, func(t *testing.T) {
			store := newMemoryStore(t)
			msg := request(t, "POST", BaseURI+"/"+op, batch(op, entries...))
			require.ErrorIs(t, msg.BodyError(), soap.ErrCapacity)

			h := NewHandler(store, zap.NewNop())
			assert.ErrorIs(t, h.Handle(context.Background(), msg), ErrResourceExhausted)
			assert.Zero(t, msg.HTTP.Status())

			list, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestHandle_ResponseOutgrowsRequestCapacity(t *testing.T) {
	store := newMemoryStore(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Set(ctx, name, "v"))
	}

	// envelope, body, response and four rows of three elements
	msg := soaphttp.New(8)
	require.NoError(t, msg.ParseRequest([]byte("GET "+BaseURI+"/listNvram HTTP/1.1\r\n\r\n")))
	msg.SetBody(nil)

	body := handle(t, store, msg)
	assert.Equal(t, 4, strings.Count(body, "<nvram>"))
	assert.Equal(t, 15, msg.SOAP.MaxElements())

	msg.Reset()
	assert.Equal(t, 8, msg.SOAP.MaxElements())
}

func TestHandle_RecordsOutcome(t *testing.T) {
	var got []recorded
	rec := recorderFunc(func(op string, ok bool) { got = append(got, recorded{op, ok}) })
	store := newMemoryStore(t)
	require.NoError(t, store.Set(context.Background(), "k", "v"))

	h := NewHandler(store, zap.NewNop(), WithRecorder(rec))
	require.NoError(t, h.Handle(context.Background(), request(t, "GET", BaseURI+"/getNvram?name=k", "")))
	require.NoError(t, h.Handle(context.Background(), request(t, "GET", BaseURI+"/getNvram?name=nope", "")))

	assert.Equal(t, []recorded{{OpGet, true}, {OpGet, false}}, got)
}

func TestInfoRows(t *testing.T) {
	rows := InfoRows(&storage.Info{
		Version:    "1.0",
		TotalSpace: 10,
		FreeSpace:  4,
		UsedSpace:  6,
		Storage: []storage.StorageInfo{
			{Backend: "memory", Coding: "none", Path: "/a"},
			{Backend: "redis", Coding: "hash", Path: "/b"},
		},
	})
	require.Len(t, rows, 10)
	assert.Equal(t, storage.Entry{Name: "storage[1].coding", Value: "hash"}, rows[8])
}
