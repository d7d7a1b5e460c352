// Package listener provides UDP ingest and validation of raw BER/DER
// datagrams.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/proteus/internal/ber"
	"github.com/geekxflood/proteus/internal/types"
)

// ValidationConfig holds configuration for datagram validation
type ValidationConfig struct {
	MaxPacketSize  int      `json:"max_packet_size"`
	MaxNodes       int      `json:"max_nodes"`
	MaxDepth       int      `json:"max_depth"`
	AllowedClasses []string `json:"allowed_classes"`
	BlockedSources []string `json:"blocked_sources"`
	AllowedSources []string `json:"allowed_sources"`
}

// DefaultValidationConfig returns a default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxPacketSize:  65536,
		MaxNodes:       10000,
		MaxDepth:       32,
		AllowedClasses: []string{},
		BlockedSources: []string{},
		AllowedSources: []string{},
	}
}

// DatagramValidator validates incoming datagrams and their decoded trees
// for security and correctness
type DatagramValidator struct {
	config *ValidationConfig
}

// NewDatagramValidator creates a new validator with the given configuration
func NewDatagramValidator(config *ValidationConfig) *DatagramValidator {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &DatagramValidator{config: config}
}

// ValidateDatagram performs validation of a raw datagram before decoding
func (v *DatagramValidator) ValidateDatagram(rawData []byte, sourceAddr string) error {
	if len(rawData) == 0 {
		return &types.ValidationError{Field: "packet", Message: "datagram is empty"}
	}

	if len(rawData) > v.config.MaxPacketSize {
		return &types.ValidationError{
			Field:   "packet_size",
			Message: fmt.Sprintf("packet size %d exceeds maximum %d", len(rawData), v.config.MaxPacketSize),
		}
	}

	return v.validateSourceAddress(sourceAddr)
}

// ValidateTree checks a decoded tag tree against the configured limits
func (v *DatagramValidator) ValidateTree(tag *ber.Tag) error {
	if count := tag.NodeCount(); count > v.config.MaxNodes {
		return &types.ValidationError{
			Field:   "nodes",
			Message: fmt.Sprintf("too many nodes: %d (max: %d)", count, v.config.MaxNodes),
		}
	}

	if depth := tag.MaxDepth(); depth > v.config.MaxDepth {
		return &types.ValidationError{
			Field:   "depth",
			Message: fmt.Sprintf("tree too deep: %d (max: %d)", depth, v.config.MaxDepth),
		}
	}

	if len(v.config.AllowedClasses) > 0 {
		allowed := false
		for _, class := range v.config.AllowedClasses {
			if strings.EqualFold(class, tag.Class.String()) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &types.ValidationError{
				Field:   "class",
				Message: fmt.Sprintf("root class %s is not allowed", tag.Class),
			}
		}
	}

	return nil
}

// validateSourceAddress validates the source IP address
func (v *DatagramValidator) validateSourceAddress(sourceAddr string) error {
	ip := net.ParseIP(sourceAddr)
	if ip == nil {
		return &types.ValidationError{
			Field:   "source_address",
			Message: fmt.Sprintf("invalid IP address: %s", sourceAddr),
		}
	}

	for _, blocked := range v.config.BlockedSources {
		if v.matchesIPPattern(ip.String(), blocked) {
			return &types.ValidationError{
				Field:   "source_address",
				Message: fmt.Sprintf("source address %s is blocked", ip.String()),
			}
		}
	}

	if len(v.config.AllowedSources) > 0 {
		allowed := false
		for _, allowedPattern := range v.config.AllowedSources {
			if v.matchesIPPattern(ip.String(), allowedPattern) {
				allowed = true
				break
			}
		}
		if !allowed {
			return &types.ValidationError{
				Field:   "source_address",
				Message: fmt.Sprintf("source address %s is not in allowed list", ip.String()),
			}
		}
	}

	return nil
}

// matchesIPPattern checks if an IP matches a pattern (supports CIDR and exact match)
func (v *DatagramValidator) matchesIPPattern(ip, pattern string) bool {
	if strings.Contains(pattern, "/") {
		_, network, err := net.ParseCIDR(pattern)
		if err == nil {
			ipAddr := net.ParseIP(ip)
			if ipAddr != nil {
				return network.Contains(ipAddr)
			}
		}
	}

	return ip == pattern
}

// RecordSink receives the decode record produced for each datagram.
type RecordSink interface {
	HandleRecord(record *types.DecodeRecord)
}

// RecordSinkFunc adapts a function to the RecordSink interface.
type RecordSinkFunc func(record *types.DecodeRecord)

// HandleRecord calls f(record).
func (f RecordSinkFunc) HandleRecord(record *types.DecodeRecord) {
	f(record)
}

// Listener receives raw BER/DER datagrams over UDP, decodes them, and hands
// the resulting records to a sink.
type Listener struct {
	config    config.Provider
	conn      *net.UDPConn
	handlers  chan *datagram
	validator *DatagramValidator
	sink      RecordSink
	decodeOpt ber.Options
	stats     *types.ListenerStats
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
}

// datagram is one received packet queued for decoding.
type datagram struct {
	data []byte
	addr *net.UDPAddr
}

// NewListener creates a new ingest listener with the provided configuration.
// The sink may be nil, in which case records are counted but discarded.
func NewListener(cfg config.Provider, sink RecordSink) (*Listener, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	maxHandlers, err := cfg.GetInt("server.max_handlers", 100)
	if err != nil {
		return nil, fmt.Errorf("failed to get max_handlers configuration: %w", err)
	}

	validationConfig := DefaultValidationConfig()
	if size, err := cfg.GetInt("server.max_packet_size", validationConfig.MaxPacketSize); err == nil {
		validationConfig.MaxPacketSize = size
	}
	if nodes, err := cfg.GetInt("server.max_nodes", validationConfig.MaxNodes); err == nil {
		validationConfig.MaxNodes = nodes
	}
	if depth, err := cfg.GetInt("server.max_depth", validationConfig.MaxDepth); err == nil {
		validationConfig.MaxDepth = depth
	}
	if blocked, err := cfg.GetStringSlice("server.blocked_sources"); err == nil && blocked != nil {
		validationConfig.BlockedSources = blocked
	}
	if allowed, err := cfg.GetStringSlice("server.allowed_sources"); err == nil && allowed != nil {
		validationConfig.AllowedSources = allowed
	}

	decodeOpt := ber.Options{ExpandEmbedded: true}
	if expand, err := cfg.GetBool("decoder.expand_embedded", true); err == nil {
		decodeOpt.ExpandEmbedded = expand
	}
	if depth, err := cfg.GetInt("decoder.max_depth", 0); err == nil && depth > 0 {
		decodeOpt.MaxDepth = depth
	}
	if payload, err := cfg.GetInt("decoder.max_payload", 0); err == nil && payload > 0 {
		decodeOpt.MaxPayload = int64(payload)
	}

	return &Listener{
		config:    cfg,
		handlers:  make(chan *datagram, maxHandlers),
		validator: NewDatagramValidator(validationConfig),
		sink:      sink,
		decodeOpt: decodeOpt,
		stats:     types.NewListenerStats(),
	}, nil
}

// Start starts the ingest listener.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("listener is already running")
	}

	host, err := l.config.GetString("server.host", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("failed to get server host: %w", err)
	}

	port, err := l.config.GetInt("server.port", 10162)
	if err != nil {
		return fmt.Errorf("failed to get server port: %w", err)
	}

	bufferSize, err := l.config.GetInt("server.buffer_size", 8192)
	if err != nil {
		return fmt.Errorf("failed to get buffer size: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to UDP socket: %w", err)
	}

	if err := conn.SetReadBuffer(bufferSize); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read buffer size: %w", err)
	}

	l.conn = conn
	l.running = true

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	maxHandlers, _ := l.config.GetInt("server.max_handlers", 100)
	for i := 0; i < maxHandlers; i++ {
		l.wg.Add(1)
		go l.handlerWorker(runCtx)
	}

	l.wg.Add(1)
	go l.listen(runCtx)

	return nil
}

// Stop stops the ingest listener gracefully.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}

	l.running = false
	cancel := l.cancel
	conn := l.conn
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}

	l.wg.Wait()

	return nil
}

// IsRunning returns whether the listener is currently running.
func (l *Listener) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// LocalAddr returns the bound UDP address, or nil before Start.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// listen is the main loop that receives UDP packets.
func (l *Listener) listen(ctx context.Context) {
	defer l.wg.Done()

	readTimeout, err := l.config.GetDuration("server.read_timeout", 30*time.Second)
	if err != nil {
		readTimeout = 30 * time.Second
	}

	buffer := make([]byte, 65536)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			l.conn.SetReadDeadline(time.Now().Add(readTimeout))

			n, addr, err := l.conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				select {
				case <-ctx.Done():
					return
				default:
				}
				continue
			}

			data := make([]byte, n)
			copy(data, buffer[:n])

			select {
			case l.handlers <- &datagram{data: data, addr: addr}:
			default:
				l.mu.Lock()
				l.stats.PacketsDropped++
				l.mu.Unlock()
			}
		}
	}
}

// handlerWorker decodes queued datagrams.
func (l *Listener) handlerWorker(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case dg, ok := <-l.handlers:
			if !ok {
				return
			}
			l.processDatagram(dg)
		}
	}
}

// processDatagram validates and decodes one datagram and emits its record.
func (l *Listener) processDatagram(dg *datagram) {
	source := dg.addr.IP.String()

	l.mu.Lock()
	l.stats.PacketsReceived++
	l.mu.Unlock()

	if err := l.validator.ValidateDatagram(dg.data, source); err != nil {
		l.mu.Lock()
		l.stats.ValidationErrors++
		l.mu.Unlock()
		return
	}

	record := l.decode(dg.data, source)

	l.mu.Lock()
	l.stats.PacketsProcessed++
	l.stats.LastPacketTime = time.Now()
	if record.Status == types.StatusOK {
		l.stats.PacketsByClass[record.RootClass]++
		l.stats.PacketsByType[record.RootType]++
	} else {
		l.stats.DecodeErrors++
	}
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.HandleRecord(record)
	}
}

// decode runs the BER decoder over one datagram and builds its record.
func (l *Listener) decode(data []byte, source string) *types.DecodeRecord {
	start := time.Now()
	tag, err := ber.DecodeBytes(data, l.decodeOpt)
	elapsed := time.Since(start)
	if err != nil {
		record := types.NewErrorRecord(source, types.TransportUDP, len(data), err)
		record.DecodeDuration = elapsed
		return record
	}

	if err := l.validator.ValidateTree(tag); err != nil {
		record := types.NewErrorRecord(source, types.TransportUDP, len(data), err)
		record.DecodeDuration = elapsed
		return record
	}

	record := types.NewRecord(source, types.TransportUDP, len(data), tag)
	record.DecodeDuration = elapsed
	if treeJSON, err := json.Marshal(types.Summarize(tag)); err == nil {
		record.TreeJSON = string(treeJSON)
	}
	return record
}

// GetStats returns listener statistics.
func (l *Listener) GetStats() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := map[string]interface{}{
		"running":           l.running,
		"queue_length":      len(l.handlers),
		"queue_cap":         cap(l.handlers),
		"packets_received":  l.stats.PacketsReceived,
		"packets_processed": l.stats.PacketsProcessed,
		"packets_dropped":   l.stats.PacketsDropped,
		"decode_errors":     l.stats.DecodeErrors,
		"validation_errors": l.stats.ValidationErrors,
		"last_packet_time":  l.stats.LastPacketTime,
		"packets_by_class":  copyCounts(l.stats.PacketsByClass),
		"packets_by_type":   copyCounts(l.stats.PacketsByType),
	}

	if l.conn != nil {
		stats["local_addr"] = l.conn.LocalAddr().String()
	}

	return stats
}

// GetDetailedStats returns detailed listener statistics
func (l *Listener) GetDetailedStats() *types.ListenerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	statsCopy := *l.stats
	statsCopy.QueueLength = len(l.handlers)
	statsCopy.QueueCapacity = cap(l.handlers)

	// The maps in the struct copy still alias live state updated under
	// l.mu; give the caller its own copies.
	statsCopy.PacketsByClass = copyCounts(l.stats.PacketsByClass)
	statsCopy.PacketsByType = copyCounts(l.stats.PacketsByType)

	return &statsCopy
}

func copyCounts(counts map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(counts))
	for key, n := range counts {
		out[key] = n
	}
	return out
}
