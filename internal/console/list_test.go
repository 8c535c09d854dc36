package console

import (
	"context"
	"sync"
	"testing"

	"github.com/bissquit/incident-console/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListAPI struct {
	mu      sync.Mutex
	calls   []query.Filters
	pages   map[string]*Page
	release map[string]chan struct{}
	err     error
}

func (f *fakeListAPI) ListIncidents(_ context.Context, filters query.Filters) (*Page, error) {
	key := query.Encode(filters)

	f.mu.Lock()
	f.calls = append(f.calls, filters)
	wait := f.release[key]
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.pages[key]; ok {
		return p, nil
	}
	return &Page{}, nil
}

func (f *fakeListAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestList_Refresh(t *testing.T) {
	api := &fakeListAPI{pages: map[string]*Page{
		"status=reported": {Count: 1},
	}}
	l := NewList(api, query.Filters{})

	require.NoError(t, l.Dispatch(FilterChanged{Param: query.ParamStatus, Values: []string{"reported"}}))

	page, err := l.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Same(t, page, l.Page())
	assert.Equal(t, []string{"reported"}, l.Filters().Status)
}

func TestList_Dispatch_InvalidAction(t *testing.T) {
	l := NewList(&fakeListAPI{}, query.Filters{Search: "x"})

	err := l.Dispatch(FilterChanged{Param: "unknown"})
	require.ErrorIs(t, err, ErrUnknownFilter)
	assert.Equal(t, "x", l.Filters().Search)
}

func TestList_StaleResponseDiscarded(t *testing.T) {
	slow := make(chan struct{})
	api := &fakeListAPI{
		pages: map[string]*Page{
			"search=old": {Count: 10},
			"search=new": {Count: 2},
		},
		release: map[string]chan struct{}{"search=old": slow},
	}
	l := NewList(api, query.Filters{})

	require.NoError(t, l.Dispatch(SearchChanged{Search: "old"}))

	oldDone := make(chan error, 1)
	go func() {
		_, err := l.Refresh(context.Background())
		oldDone <- err
	}()
	require.Eventually(t, func() bool { return api.callCount() == 1 }, timeout, tick)

	require.NoError(t, l.Dispatch(SearchChanged{Search: "new"}))
	page, err := l.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)

	close(slow)
	assert.ErrorIs(t, <-oldDone, ErrStaleResponse)
	assert.Equal(t, 2, l.Page().Count)
}

func TestList_FilterChangeInvalidatesInFlight(t *testing.T) {
	slow := make(chan struct{})
	api := &fakeListAPI{release: map[string]chan struct{}{"": slow}}
	l := NewList(api, query.Filters{})

	done := make(chan error, 1)
	go func() {
		_, err := l.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return api.callCount() == 1 }, timeout, tick)

	require.NoError(t, l.Dispatch(PageChanged{Page: 2}))
	close(slow)

	assert.ErrorIs(t, <-done, ErrStaleResponse)
	assert.Nil(t, l.Page())
}

func TestList_Error(t *testing.T) {
	api := &fakeListAPI{err: &RequestError{StatusCode: 500, Detail: "boom"}}
	l := NewList(api, query.Filters{})

	_, err := l.Refresh(context.Background())
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Nil(t, l.Page())
}
