package amflow

import (
	"github.com/roach88/amflow/internal/playlog"
)

// PromisifiedAMFlow exposes an AMFlow's asynchronous operations as Futures.
// It holds no state besides the wrapped backend.
type PromisifiedAMFlow struct {
	amflow AMFlow
}

// Promisify wraps amflow.
func Promisify(amflow AMFlow) *PromisifiedAMFlow {
	return &PromisifiedAMFlow{amflow: amflow}
}

// Unwrap returns the wrapped backend.
func (p *PromisifiedAMFlow) Unwrap() AMFlow {
	return p.amflow
}

// voidCallback adapts a Callback onto a Future[struct{}].
func voidCallback(f *Future[struct{}]) Callback {
	settle := f.callback()
	return func(err error) { settle(struct{}{}, err) }
}

// Open begins a session.
func (p *PromisifiedAMFlow) Open(playID string) *Future[struct{}] {
	f := newFuture[struct{}]()
	p.amflow.Open(playID, voidCallback(f))
	return f
}

// Close ends the session.
func (p *PromisifiedAMFlow) Close() *Future[struct{}] {
	f := newFuture[struct{}]()
	p.amflow.Close(voidCallback(f))
	return f
}

// Authenticate exchanges token for a Permission.
func (p *PromisifiedAMFlow) Authenticate(token string) *Future[*Permission] {
	f := newFuture[*Permission]()
	p.amflow.Authenticate(token, f.callback())
	return f
}

// GetTickList fetches a stored tick range. The legacy form is normalized into
// options before the backend sees it; an invalid query rejects without
// reaching the backend.
func (p *PromisifiedAMFlow) GetTickList(q TickListQuery) *Future[*playlog.TickList] {
	f := newFuture[*playlog.TickList]()
	opts, err := q.Normalize()
	if err != nil {
		f.settle(nil, err)
		return f
	}
	p.amflow.GetTickList(OptionsTickListQuery(opts), f.callback())
	return f
}

// GetTickListRange is the positional form of GetTickList.
//
// Deprecated: use GetTickList with OptionsTickListQuery.
func (p *PromisifiedAMFlow) GetTickListRange(begin, end int64) *Future[*playlog.TickList] {
	return p.GetTickList(LegacyTickListQuery(begin, end))
}

// PutStartPoint stores a start point.
func (p *PromisifiedAMFlow) PutStartPoint(sp StartPoint) *Future[struct{}] {
	f := newFuture[struct{}]()
	p.amflow.PutStartPoint(sp, voidCallback(f))
	return f
}

// GetStartPoint fetches the start point selected by opts.
func (p *PromisifiedAMFlow) GetStartPoint(opts GetStartPointOptions) *Future[*StartPoint] {
	f := newFuture[*StartPoint]()
	p.amflow.GetStartPoint(opts, f.callback())
	return f
}

// PutStorageData writes one storage value.
func (p *PromisifiedAMFlow) PutStorageData(key playlog.StorageKey, value playlog.StorageValue, opts PutStorageDataOptions) *Future[struct{}] {
	f := newFuture[struct{}]()
	p.amflow.PutStorageData(key, value, opts, voidCallback(f))
	return f
}

// GetStorageData reads storage values, one entry per key in key order.
func (p *PromisifiedAMFlow) GetStorageData(keys []playlog.StorageReadKey) *Future[[]playlog.StorageData] {
	f := newFuture[[]playlog.StorageData]()
	p.amflow.GetStorageData(keys, f.callback())
	return f
}

// OnTick passes through to the backend.
func (p *PromisifiedAMFlow) OnTick(h TickHandler) {
	p.amflow.OnTick(h)
}

// OffTick passes through to the backend.
func (p *PromisifiedAMFlow) OffTick(h TickHandler) {
	p.amflow.OffTick(h)
}

// OnEvent passes through to the backend.
func (p *PromisifiedAMFlow) OnEvent(h EventHandler) {
	p.amflow.OnEvent(h)
}

// OffEvent passes through to the backend.
func (p *PromisifiedAMFlow) OffEvent(h EventHandler) {
	p.amflow.OffEvent(h)
}

// SendTick passes through to the backend.
func (p *PromisifiedAMFlow) SendTick(tick playlog.Tick) error {
	return p.amflow.SendTick(tick)
}

// SendEvent passes through to the backend.
func (p *PromisifiedAMFlow) SendEvent(event playlog.Event) error {
	return p.amflow.SendEvent(event)
}
