package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsStream int64
	errorsExport int64
	warnsStream  int64
	warnsExport  int64
	streamReads  int64
	restReads    int64
	exportWrites int64
	channels     sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "stream") {
		atomic.AddInt64(&warnsStream, 1)
	} else if strings.Contains(component, "export") || strings.Contains(component, "sink") {
		atomic.AddInt64(&warnsExport, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "stream") {
		atomic.AddInt64(&errorsStream, 1)
	} else if strings.Contains(component, "export") || strings.Contains(component, "sink") {
		atomic.AddInt64(&errorsExport, 1)
	}
}

// IncrementStreamRead counts one line read from the event stream.
func IncrementStreamRead(size int) {
	atomic.AddInt64(&streamReads, 1)
	recordChannel("stream_sse", size)
}

// IncrementRestRead counts one REST response body.
func IncrementRestRead(size int) {
	atomic.AddInt64(&restReads, 1)
	recordChannel("rest", size)
}

// IncrementExportWrite counts one snapshot written by a sink.
func IncrementExportWrite(sink string, size int) {
	atomic.AddInt64(&exportWrites, 1)
	recordChannel("export_"+sink, size)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of runtime and channel statistics.
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

func reportFields() Fields {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	return Fields{
		"errors_stream": atomic.LoadInt64(&errorsStream),
		"errors_export": atomic.LoadInt64(&errorsExport),
		"warns_stream":  atomic.LoadInt64(&warnsStream),
		"warns_export":  atomic.LoadInt64(&warnsExport),
		"stream_reads":  atomic.LoadInt64(&streamReads),
		"rest_reads":    atomic.LoadInt64(&restReads),
		"export_writes": atomic.LoadInt64(&exportWrites),
		"goroutines":    runtime.NumGoroutine(),
		"heap_mb":       int64(mem.HeapAlloc) / 1024 / 1024,
		"channels":      channelData,
	}
}

func logReport(log *Log) {
	log.WithComponent("report").WithFields(reportFields()).Info("runtime report")
}
