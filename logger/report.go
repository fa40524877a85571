package logger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type componentStat struct {
	warns  int64
	errors int64
}

type flowStat struct {
	messages int64
	bytes    int64
}

var (
	componentStats sync.Map // map[string]*componentStat
	flowStats      sync.Map // map[string]*flowStat
)

func recordWarn(component string) {
	v, _ := componentStats.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).warns, 1)
}

func recordError(component string) {
	v, _ := componentStats.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).errors, 1)
}

// RecordFlow counts one message of the named flow, e.g. feed reads, hub
// broadcasts or order submissions.
func RecordFlow(name string, size int) {
	v, _ := flowStats.LoadOrStore(name, &flowStat{})
	fs := v.(*flowStat)
	atomic.AddInt64(&fs.messages, 1)
	atomic.AddInt64(&fs.bytes, int64(size))
}

// StartReport begins periodic logging of flow and component statistics until
// the context is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(log)
			}
		}
	}()
}

func logReport(log *Log) {
	flows := map[string]map[string]int64{}
	flowStats.Range(func(k, v any) bool {
		fs := v.(*flowStat)
		flows[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&fs.messages),
			"bytes":    atomic.LoadInt64(&fs.bytes),
		}
		return true
	})

	health := map[string]map[string]int64{}
	componentStats.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		health[k.(string)] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	log.WithComponent("report").WithFields(Fields{
		"flows":      flows,
		"components": health,
	}).Info("periodic report")
}
