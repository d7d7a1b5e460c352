// Package types provides common record and statistics types shared by the
// proteus components.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/geekxflood/proteus/internal/ber"
)

// Decode record status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Transport names recorded per decoded blob.
const (
	TransportUDP  = "udp"
	TransportFile = "file"
)

// DecodeRecord describes one decoded blob: where it came from, how large it
// was, and the shape of the resulting tag tree. It is what the service
// stores and exposes; the tree itself lives in TreeJSON as a NodeSummary.
type DecodeRecord struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Transport  string    `json:"transport"`
	SizeBytes  int       `json:"size_bytes"`
	RootClass  string    `json:"root_class"`
	RootType   string    `json:"root_type"`
	NodeCount  int       `json:"node_count"`
	MaxDepth   int       `json:"max_depth"`
	Indefinite bool      `json:"indefinite"`
	Status     string    `json:"status"`

	// DecodeDuration is the wall time the decoder spent on this blob,
	// set by the ingest path that produced the record.
	DecodeDuration time.Duration `json:"decode_duration,omitempty"`

	Error      string    `json:"error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	TreeJSON   string    `json:"tree_json,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GetID returns the record ID.
func (r *DecodeRecord) GetID() int64 {
	return r.ID
}

// NodeSummary is a JSON-friendly rendering of one tag tree node, used for
// storage and for the CLI's --json output.
type NodeSummary struct {
	Offset      int64         `json:"offset"`
	Class       string        `json:"class"`
	Identifier  uint64        `json:"identifier"`
	Type        string        `json:"type"`
	Constructed bool          `json:"constructed"`
	Length      int64         `json:"length"`
	Indefinite  bool          `json:"indefinite,omitempty"`
	DataHex     string        `json:"data,omitempty"`
	Truncated   bool          `json:"data_truncated,omitempty"`
	Children    []NodeSummary `json:"children,omitempty"`
}

// MaxSummaryDataBytes caps the payload bytes carried per node in a
// NodeSummary; longer payloads are truncated and flagged.
const MaxSummaryDataBytes = 256

// Summarize converts a decoded tag tree into its NodeSummary form.
func Summarize(tag *ber.Tag) NodeSummary {
	s := NodeSummary{
		Offset:      tag.StartOffset,
		Class:       tag.Class.String(),
		Identifier:  tag.Identifier,
		Type:        tag.TypeName(),
		Constructed: tag.Constructed,
		Length:      tag.Length,
		Indefinite:  tag.Length == ber.LengthIndefinite,
	}
	if len(tag.Data) > 0 {
		data := tag.Data
		if len(data) > MaxSummaryDataBytes {
			data = data[:MaxSummaryDataBytes]
			s.Truncated = true
		}
		s.DataHex = fmt.Sprintf("%x", data)
	}
	for _, child := range tag.Children {
		s.Children = append(s.Children, Summarize(child))
	}
	return s
}

// NewRecord builds a DecodeRecord for a successfully decoded tag tree.
func NewRecord(source, transport string, size int, tag *ber.Tag) *DecodeRecord {
	return &DecodeRecord{
		Timestamp:  time.Now(),
		Source:     source,
		Transport:  transport,
		SizeBytes:  size,
		RootClass:  tag.Class.String(),
		RootType:   tag.TypeName(),
		NodeCount:  tag.NodeCount(),
		MaxDepth:   tag.MaxDepth(),
		Indefinite: tag.Length == ber.LengthIndefinite,
		Status:     StatusOK,
	}
}

// NewErrorRecord builds a DecodeRecord for a blob that failed to decode.
func NewErrorRecord(source, transport string, size int, decodeErr error) *DecodeRecord {
	return &DecodeRecord{
		Timestamp: time.Now(),
		Source:    source,
		Transport: transport,
		SizeBytes: size,
		Status:    StatusError,
		Error:     decodeErr.Error(),
		ErrorKind: DecodeErrorKind(decodeErr),
	}
}

// DecodeErrorKind maps a decode error to a stable kind label.
func DecodeErrorKind(err error) string {
	switch {
	case errors.Is(err, ber.ErrTruncatedInput):
		return "truncated_input"
	case errors.Is(err, ber.ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, ber.ErrUnsupportedLength):
		return "unsupported_length"
	case errors.Is(err, ber.ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ber.ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, ber.ErrDepthExceeded):
		return "depth_exceeded"
	default:
		return "other"
	}
}

// ValidationError represents a datagram validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// ListenerStats represents statistics for the ingest listener.
type ListenerStats struct {
	PacketsReceived  uint64            `json:"packets_received"`
	PacketsProcessed uint64            `json:"packets_processed"`
	PacketsDropped   uint64            `json:"packets_dropped"`
	DecodeErrors     uint64            `json:"decode_errors"`
	ValidationErrors uint64            `json:"validation_errors"`
	QueueLength      int               `json:"queue_length"`
	QueueCapacity    int               `json:"queue_capacity"`
	LastPacketTime   time.Time         `json:"last_packet_time"`
	PacketsByClass   map[string]uint64 `json:"packets_by_class"`
	PacketsByType    map[string]uint64 `json:"packets_by_type"`
}

// NewListenerStats creates a new ListenerStats instance.
func NewListenerStats() *ListenerStats {
	return &ListenerStats{
		PacketsByClass: make(map[string]uint64),
		PacketsByType:  make(map[string]uint64),
	}
}

// LoaderStats tracks capture-directory loader statistics.
type LoaderStats struct {
	DirectoriesScanned int           `json:"directories_scanned"`
	FilesLoaded        int           `json:"files_loaded"`
	FilesWatched       int           `json:"files_watched"`
	DecodeErrors       int           `json:"decode_errors"`
	TotalSize          int64         `json:"total_size"`
	LastScanTime       time.Time     `json:"last_scan_time"`
	ScanDuration       time.Duration `json:"scan_duration"`
	ReloadEvents       int           `json:"reload_events"`
}
