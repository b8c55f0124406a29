package capture

import (
	"net/url"
	"sync"

	"golang.org/x/text/language"
)

// Locale is the active language of one execution context. It replaces a
// process-wide language setting so concurrent requests never observe each
// other's conversion language.
type Locale struct {
	mu  sync.Mutex
	tag language.Tag
}

func NewLocale(tag language.Tag) *Locale {
	return &Locale{tag: tag}
}

func (l *Locale) Tag() language.Tag {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tag
}

// Swap activates tag and returns a func that reinstates the previous tag.
// The returned func is meant to be deferred.
func (l *Locale) Swap(tag language.Tag) (restore func()) {
	l.mu.Lock()
	prev := l.tag
	l.tag = tag
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.tag = prev
			l.mu.Unlock()
		})
	}
}

// ExecutionContext describes who and what triggered a lifecycle event.
type ExecutionContext interface {
	// Interactive is false for batch and console work.
	Interactive() bool
	// ActorIdentity reports the authenticated actor; false for anonymous sessions.
	ActorIdentity() (int64, bool)
	ActorIP() string
	RequestURL() string
	RemarkParameter(name string) (string, bool)
	Locale() *Locale
}

// RequestContext is the execution context of an HTTP request.
type RequestContext struct {
	Identity *int64
	RemoteIP string
	URL      string
	Form     url.Values // body parameters, consulted before Query
	Query    url.Values
	Lang     *Locale
}

var _ ExecutionContext = (*RequestContext)(nil)

func (r *RequestContext) Interactive() bool { return true }

func (r *RequestContext) ActorIdentity() (int64, bool) {
	if r.Identity == nil {
		return 0, false
	}
	return *r.Identity, true
}

func (r *RequestContext) ActorIP() string { return r.RemoteIP }

func (r *RequestContext) RequestURL() string { return r.URL }

func (r *RequestContext) RemarkParameter(name string) (string, bool) {
	if vs, ok := r.Form[name]; ok && len(vs) > 0 {
		return vs[0], true
	}
	if vs, ok := r.Query[name]; ok && len(vs) > 0 {
		return vs[0], true
	}
	return "", false
}

func (r *RequestContext) Locale() *Locale {
	if r.Lang == nil {
		r.Lang = NewLocale(language.English)
	}
	return r.Lang
}

// Background is the execution context of console jobs and queue consumers.
type Background struct {
	Lang *Locale
}

var _ ExecutionContext = (*Background)(nil)

func (b *Background) Interactive() bool { return false }

func (b *Background) ActorIdentity() (int64, bool) { return 0, false }

func (b *Background) ActorIP() string { return "" }

func (b *Background) RequestURL() string { return "" }

func (b *Background) RemarkParameter(string) (string, bool) { return "", false }

func (b *Background) Locale() *Locale {
	if b.Lang == nil {
		b.Lang = NewLocale(language.English)
	}
	return b.Lang
}
