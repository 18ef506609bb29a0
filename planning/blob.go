package planning

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/conversant-dev/conversant/core"
	"github.com/conversant-dev/conversant/telemetry"
)

// Blob wire format, fixed:
//
//	offset  0..3   magic       ASCII "CVST"
//	offset  4..5   version     u16 big-endian
//	offset  6..37  hash        SHA-256 of bytes [38..]
//	offset 38..EOF compressed  gzip(utf-8(json(state)))
const (
	blobMagic     = "CVST"
	blobHeaderLen = 38
)

// BlobOption configures a BlobSerializer.
type BlobOption func(*BlobSerializer)

// WithMigrations attaches a migration registry. Its current version becomes
// the schema version written on serialization.
func WithMigrations(registry *MigrationRegistry) BlobOption {
	return func(s *BlobSerializer) { s.migrations = registry }
}

// WithSchemaVersion fixes the schema version written on serialization. A
// migration registry takes precedence; without either the version is 1.
func WithSchemaVersion(version uint16) BlobOption {
	return func(s *BlobSerializer) {
		if version > 0 {
			s.version = version
		}
	}
}

// WithWorkingContexts attaches the registry used to decode working-context
// payloads into their typed form.
func WithWorkingContexts(registry *WorkingContextRegistry) BlobOption {
	return func(s *BlobSerializer) { s.contexts = registry }
}

// WithBlobLogger sets the serializer's logger.
func WithBlobLogger(logger core.Logger) BlobOption {
	return func(s *BlobSerializer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// BlobSerializer turns conversation states into opaque, versioned,
// integrity-checked byte strings and back. Hosts store blobs wherever they
// like; the engine only requires the bytes come back unmodified.
type BlobSerializer struct {
	migrations *MigrationRegistry
	contexts   *WorkingContextRegistry
	version    uint16
	logger     core.Logger
}

// NewBlobSerializer creates a serializer. Without a migration registry or an
// explicit schema version the version defaults to 1, and no migrations run on
// deserialize.
func NewBlobSerializer(opts ...BlobOption) *BlobSerializer {
	s := &BlobSerializer{
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *BlobSerializer) currentVersion() uint16 {
	if s.migrations != nil {
		return s.migrations.CurrentVersion()
	}
	if s.version > 0 {
		return s.version
	}
	return 1
}

// adoptSchemaVersion applies a configured schema version unless the host
// already fixed one through WithSchemaVersion or a migration registry.
func (s *BlobSerializer) adoptSchemaVersion(version uint16) {
	if s.migrations == nil && s.version == 0 && version > 0 {
		s.version = version
	}
}

// stateDoc is the stable JSON shape of a serialized state.
type stateDoc struct {
	OriginalInstruction string                 `json:"originalInstruction"`
	PendingParams       []PendingParam         `json:"pendingParams"`
	ProvidedParams      map[string]interface{} `json:"providedParams"`
	LatestUserMessage   string                 `json:"latestUserMessage,omitempty"`
	WorkingContext      *workingContextDoc     `json:"workingContext,omitempty"`
	TurnHistory         []workingContextDoc    `json:"turnHistory"`
}

type workingContextDoc struct {
	ContextType  string            `json:"contextType"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	LastModified time.Time         `json:"lastModified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Serialize encodes the state as JSON, compresses it and prepends the
// integrity header.
func (s *BlobSerializer) Serialize(state *ConversationState) ([]byte, error) {
	doc, err := s.encodeState(state)
	if err != nil {
		return nil, err
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("blob.Serialize: encode state: %w", err)
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(jsonBytes); err != nil {
		return nil, fmt.Errorf("blob.Serialize: compress state: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("blob.Serialize: compress state: %w", err)
	}

	body := compressed.Bytes()
	blob := make([]byte, blobHeaderLen+len(body))
	copy(blob[0:4], blobMagic)
	binary.BigEndian.PutUint16(blob[4:6], s.currentVersion())
	hash := sha256.Sum256(body)
	copy(blob[6:38], hash[:])
	copy(blob[blobHeaderLen:], body)

	telemetry.Histogram("conversant.blob.bytes", float64(len(blob)), "direction", "serialize")
	return blob, nil
}

// Deserialize verifies and decodes a blob, applying the forward migration
// chain when the blob was written by an older schema version.
func (s *BlobSerializer) Deserialize(data []byte) (*ConversationState, error) {
	if len(data) < blobHeaderLen {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", core.ErrIntegrity, len(data))
	}
	if string(data[0:4]) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic", core.ErrIntegrity)
	}

	version := binary.BigEndian.Uint16(data[4:6])
	current := s.currentVersion()
	if version > current {
		return nil, fmt.Errorf("%w: blob version %d is newer than supported version %d", core.ErrMigration, version, current)
	}

	body := data[blobHeaderLen:]
	hash := sha256.Sum256(body)
	if !bytes.Equal(hash[:], data[6:38]) {
		return nil, fmt.Errorf("%w: hash mismatch", core.ErrIntegrity)
	}

	jsonBytes, err := gunzip(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", core.ErrIntegrity, err)
	}

	if version < current {
		if s.migrations == nil {
			return nil, fmt.Errorf("%w: no migration for v%d->v%d", core.ErrMigration, version, version+1)
		}
		var generic map[string]interface{}
		if err := json.Unmarshal(jsonBytes, &generic); err != nil {
			return nil, fmt.Errorf("%w: decode for migration: %v", core.ErrMigration, err)
		}
		migrated, err := s.migrations.Apply(generic, version)
		if err != nil {
			return nil, err
		}
		jsonBytes, err = json.Marshal(migrated)
		if err != nil {
			return nil, fmt.Errorf("%w: re-encode after migration: %v", core.ErrMigration, err)
		}
		s.logger.Debug("Blob migrated", map[string]interface{}{
			"operation":    "blob_migrate",
			"from_version": version,
			"to_version":   current,
		})
	}

	var doc stateDoc
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("blob.Deserialize: decode state: %w", err)
	}
	return s.decodeState(&doc)
}

// ToReadableJSON decompresses and pretty-prints a blob for debugging. It
// skips integrity verification on purpose: the whole point is inspecting a
// blob that may be damaged. Failures come back as a JSON error object.
func (s *BlobSerializer) ToReadableJSON(data []byte) string {
	fail := func(err error) string {
		msg, _ := json.Marshal(err.Error())
		return fmt.Sprintf(`{"error": %s}`, msg)
	}

	if len(data) < blobHeaderLen {
		return fail(fmt.Errorf("blob too short (%d bytes)", len(data)))
	}
	jsonBytes, err := gunzip(data[blobHeaderLen:])
	if err != nil {
		return fail(fmt.Errorf("decompress: %v", err))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, jsonBytes, "", "  "); err != nil {
		return fail(fmt.Errorf("not valid JSON: %v", err))
	}
	return pretty.String()
}

func (s *BlobSerializer) encodeState(state *ConversationState) (*stateDoc, error) {
	doc := &stateDoc{
		OriginalInstruction: state.OriginalInstruction(),
		PendingParams:       state.PendingParams(),
		ProvidedParams:      state.ProvidedParams(),
		LatestUserMessage:   state.LatestUserMessage(),
		TurnHistory:         []workingContextDoc{},
	}
	if doc.PendingParams == nil {
		doc.PendingParams = []PendingParam{}
	}

	if wc := state.WorkingContext(); wc != nil {
		encoded, err := encodeWorkingContext(wc)
		if err != nil {
			return nil, err
		}
		doc.WorkingContext = encoded
	}
	for _, wc := range state.TurnHistory() {
		entry := wc
		encoded, err := encodeWorkingContext(&entry)
		if err != nil {
			return nil, err
		}
		doc.TurnHistory = append(doc.TurnHistory, *encoded)
	}
	return doc, nil
}

func encodeWorkingContext(wc *WorkingContext) (*workingContextDoc, error) {
	payload, err := json.Marshal(wc.Payload)
	if err != nil {
		return nil, fmt.Errorf("blob.Serialize: encode %s payload: %w", wc.ContextType, err)
	}
	return &workingContextDoc{
		ContextType:  wc.ContextType,
		Payload:      payload,
		LastModified: wc.LastModified,
		Metadata:     wc.Metadata,
	}, nil
}

func (s *BlobSerializer) decodeState(doc *stateDoc) (*ConversationState, error) {
	state := &ConversationState{
		originalInstruction: doc.OriginalInstruction,
		pendingParams:       doc.PendingParams,
		providedParams:      doc.ProvidedParams,
		latestUserMessage:   doc.LatestUserMessage,
	}
	if state.providedParams == nil {
		state.providedParams = make(map[string]interface{})
	}

	if doc.WorkingContext != nil {
		wc, err := s.decodeWorkingContext(doc.WorkingContext)
		if err != nil {
			return nil, err
		}
		state.workingContext = wc
	}
	for i := range doc.TurnHistory {
		wc, err := s.decodeWorkingContext(&doc.TurnHistory[i])
		if err != nil {
			return nil, err
		}
		state.turnHistory = append(state.turnHistory, *wc)
	}
	return state, nil
}

func (s *BlobSerializer) decodeWorkingContext(doc *workingContextDoc) (*WorkingContext, error) {
	var (
		payload interface{}
		err     error
	)
	if s.contexts != nil {
		payload, err = s.contexts.DecodePayload(doc.ContextType, doc.Payload)
	} else if len(doc.Payload) > 0 {
		err = json.Unmarshal(doc.Payload, &payload)
	}
	if err != nil {
		return nil, fmt.Errorf("blob.Deserialize: %w", err)
	}
	return &WorkingContext{
		ContextType:  doc.ContextType,
		Payload:      payload,
		LastModified: doc.LastModified,
		Metadata:     doc.Metadata,
	}, nil
}

func gunzip(body []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
