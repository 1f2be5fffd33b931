package domain

import "time"

// Normative limits. These are compiled defaults; the ones that matter for
// deployments can be overridden via configuration.
const (
	// Message limits (characters, counted after trimming)
	MinMessageTextLength = 1
	MaxMessageTextLength = 500

	// Chat limits
	DirectChatParticipants = 2 // A direct chat has exactly two members

	// Connection limits
	MaxFrameSize = 16 * 1024 // Largest inbound WebSocket frame accepted

	// Buffer limits (backpressure)
	OutboundBufferSize = 256              // Frames buffered per connection before drops
	WriteTimeout       = 10 * time.Second // Max time for a single socket write

	// Heartbeat configuration
	HeartbeatInterval = 30 * time.Second // Server sends ping every 30s; reads time out after two missed pongs

	// Event rate limiting (per user, fixed window)
	EventRateLimit       = 30
	EventRateLimitWindow = 10 * time.Second

	// Timeout contracts
	PostgresTimeout = 5 * time.Second
	RedisTimeout    = 2 * time.Second

	// Identity cache
	UserExistsCacheSize = 10_000
	UserExistsCacheTTL  = 5 * time.Minute

	// Graceful shutdown
	GracefulShutdownTimeout = 30 * time.Second       // Max time to drain connections on shutdown
	ShutdownDrainDelay      = 500 * time.Millisecond // Health reports 503 this long before listeners close
	ShutdownHTTPTimeout     = 10 * time.Second
	ShutdownOTELTimeout     = 5 * time.Second

	// Pagination defaults
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
	MaxPage         = 1_000_000 // Keeps Skip far below the int64 range
)

// Page is a validated page/take pair.
type Page struct {
	Number int
	Size   int
}

// NewPage applies defaults to non-positive values and clamps both the page
// number and the size.
func NewPage(number, size int) Page {
	if number < 1 {
		number = DefaultPage
	}
	if number > MaxPage {
		number = MaxPage
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Skip returns the number of rows preceding this page: (page-1)*take.
func (p Page) Skip() int {
	return (p.Number - 1) * p.Size
}
