package docstore

import (
	"context"
	"sync"
)

// subscribe runs one goroutine per subscription. Change notifications are
// coalesced: a burst of writes produces at least one, and possibly only
// one, fresh read.
func subscribe(
	ctx context.Context,
	backend Backend,
	collection string,
	read func(context.Context) (Snapshot, error),
	cb func(Snapshot),
	errCb func(error),
) (Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	changed := make(chan struct{}, 1)
	changed <- struct{}{}

	stopWatch, err := backend.Watch(ctx, collection, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
			}

			snap, err := read(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				if errCb != nil {
					errCb(err)
				}
				continue
			}
			cb(snap)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			stopWatch()
			cancel()
			<-done
		})
	}, nil
}
