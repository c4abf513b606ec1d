package vecfile

import (
	"github.com/hupe1980/vecfile/archive"
	"github.com/hupe1980/vecfile/resource"
)

// DefaultFlushInterval is the number of page allocations between the
// intermediate commits made while growing a store.
const DefaultFlushInterval = 100

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	flushInterval    int
	elementsPerPage  uint32
	resources        *resource.Controller
	compression      archive.Compression
	framePages       uint32
}

// Option configures Create, Open, Backup and Restore.
type Option func(*options)

// WithLogger sets the logger. Defaults to NoopLogger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsCollector sets the metrics collector. Defaults to NoopMetricsCollector.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metricsCollector = mc
		}
	}
}

// WithFlushInterval sets how many pages Expand and Insert allocate between
// intermediate commits. Values < 1 are ignored.
func WithFlushInterval(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.flushInterval = n
		}
	}
}

// WithElementsPerPage caps the number of elements per data page below what
// the page size allows. It only affects Create; the value is stored in the
// header.
func WithElementsPerPage(n uint32) Option {
	return func(o *options) {
		o.elementsPerPage = n
	}
}

// WithResources sets the controller that bounds the background workers
// Backup compresses frames on and throttles archive transfers. Pass the same
// controller to the page manager to also cap resident pages and flush IO.
func WithResources(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

// WithCompression selects the archive frame compression used by Backup.
// Defaults to archive.CompressionLZ4.
func WithCompression(c archive.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithFramePages sets the number of pages per archive frame.
// Defaults to archive.DefaultFramePages.
func WithFramePages(n uint32) Option {
	return func(o *options) {
		if n > 0 {
			o.framePages = n
		}
	}
}

func applyOptions(optFns []Option) options {
	opts := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		flushInterval:    DefaultFlushInterval,
		compression:      archive.CompressionLZ4,
		framePages:       archive.DefaultFramePages,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}
