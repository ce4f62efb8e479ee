package metrics

import (
	"sync"
	"time"

	"oddsflow/logger"
)

// Metric types understood by the dashboard.
const (
	TypeCounter = "counter"
	TypeGauge   = "gauge"
	TypeTiming  = "timing"
)

// Metric is one structured metric event, e.g. the size of a snapshot or the
// time a sink took to export it.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler consumes metric events. Handlers run on the emitting
// goroutine and must not block.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler. Zero is never issued.
type MetricHandlerID uint64

type registeredHandler struct {
	id      MetricHandlerID
	handler MetricHandler
}

// handlerRegistry keeps handlers in registration order so dispatch order is
// stable.
type handlerRegistry struct {
	mu       sync.RWMutex
	handlers []registeredHandler
	nextID   MetricHandlerID
}

var registry = &handlerRegistry{}

func (r *handlerRegistry) add(h MetricHandler) MetricHandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers = append(r.handlers, registeredHandler{id: r.nextID, handler: h})
	return r.nextID
}

func (r *handlerRegistry) remove(id MetricHandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.id == id {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return
		}
	}
}

func (r *handlerRegistry) list() []MetricHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MetricHandler, len(r.handlers))
	for i, h := range r.handlers {
		out[i] = h.handler
	}
	return out
}

// RegisterMetricHandler subscribes handler to every emitted metric. A nil
// handler is ignored and gets id zero.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return registry.add(handler)
}

// UnregisterMetricHandler removes the handler with the given id. Unknown ids
// are ignored.
func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	registry.remove(id)
}

// EmitMetric logs the metric at debug level and hands it to every registered
// handler. An empty name is dropped; an empty type means counter.
func EmitMetric(log *logger.Log, component string, name string, value interface{}, metricType string, fields logger.Fields) {
	if name == "" {
		return
	}
	if metricType == "" {
		metricType = TypeCounter
	}
	if log == nil {
		log = logger.GetLogger()
	}

	metric := Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    make(logger.Fields, len(fields)),
	}
	logFields := make(logger.Fields, len(fields)+3)
	for k, v := range fields {
		metric.Fields[k] = v
		logFields[k] = v
	}
	logFields["metric"] = name
	logFields["metric_type"] = metricType
	logFields["value"] = value
	log.WithComponent(component).WithFields(logFields).Debug("metric")

	for _, handler := range registry.list() {
		handler(metric)
	}
}

// EmitDuration emits d as a timing metric in milliseconds.
func EmitDuration(log *logger.Log, component, name string, d time.Duration, fields logger.Fields) {
	EmitMetric(log, component, name, float64(d.Microseconds())/1000, TypeTiming, fields)
}
