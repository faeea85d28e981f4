package vector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// Snapshot format: magic (4), version (4), dimension (4), document count (4),
// then per document: id, source label, created-at unix nanos (8), chunk count (4),
// then per chunk: id, text, position (4), token count (4), word count (4),
// truncated (1), vector (dimension * 4). Strings are length-prefixed (4).
// All integers little-endian. Best-effort persistence within one deployment;
// not a durability guarantee.
const (
	snapshotMagic   = 0x4b4f5441 // "KOTA"
	snapshotVersion = 1
)

// Save writes the index contents to path. The directory is created if needed.
func (idx *Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	for _, v := range []uint32{snapshotMagic, snapshotVersion, uint32(idx.dimension), uint32(len(idx.docs))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	ordinalOf := make(map[string]int, len(idx.ordinals))
	for ord, chunkID := range idx.ordinals {
		ordinalOf[chunkID] = ord
	}
	for _, doc := range idx.docs {
		if err := writeString(w, doc.ID); err != nil {
			return err
		}
		if err := writeString(w, doc.SourceLabel); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, doc.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("write created_at: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(doc.ChunkIDs))); err != nil {
			return fmt.Errorf("write chunk count: %w", err)
		}
		for _, chunkID := range doc.ChunkIDs {
			chunk := idx.chunks[chunkID]
			ord, ok := ordinalOf[chunkID]
			if chunk == nil || !ok {
				return fmt.Errorf("snapshot: chunk %s missing from index", chunkID)
			}
			if err := writeString(w, chunk.ID); err != nil {
				return err
			}
			if err := writeString(w, chunk.Text); err != nil {
				return err
			}
			truncated := uint8(0)
			if chunk.Truncated {
				truncated = 1
			}
			for _, v := range []uint32{uint32(chunk.Position), uint32(chunk.TokenCount), uint32(chunk.WordCount)} {
				if err := binary.Write(w, binary.LittleEndian, v); err != nil {
					return fmt.Errorf("write chunk fields: %w", err)
				}
			}
			if err := binary.Write(w, binary.LittleEndian, truncated); err != nil {
				return fmt.Errorf("write truncated flag: %w", err)
			}
			if _, err := w.Write(float32sToBytes(idx.vectors[ord])); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// Load replaces the index contents from the snapshot at path. A missing file
// is not an error and leaves the index unchanged.
func (idx *Index) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic, version, dim, docCount uint32
	for _, p := range []*uint32{&magic, &version, &dim, &docCount} {
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			return fmt.Errorf("read header: %w", err)
		}
	}
	if magic != snapshotMagic {
		return fmt.Errorf("not a kotae snapshot")
	}
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}

	loaded := &Index{
		dimension: int(dim),
		chunks:    make(map[string]*models.Chunk),
		docs:      make(map[string]*models.Document),
	}
	for d := uint32(0); d < docCount; d++ {
		docID, err := readString(r)
		if err != nil {
			return err
		}
		source, err := readString(r)
		if err != nil {
			return err
		}
		var createdAt int64
		if err := binary.Read(r, binary.LittleEndian, &createdAt); err != nil {
			return fmt.Errorf("read created_at: %w", err)
		}
		var chunkCount uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkCount); err != nil {
			return fmt.Errorf("read chunk count: %w", err)
		}
		doc := &models.Document{
			ID:          docID,
			SourceLabel: source,
			CreatedAt:   time.Unix(0, createdAt),
		}
		for i := uint32(0); i < chunkCount; i++ {
			chunkID, err := readString(r)
			if err != nil {
				return err
			}
			text, err := readString(r)
			if err != nil {
				return err
			}
			var position, tokenCount, wordCount uint32
			for _, p := range []*uint32{&position, &tokenCount, &wordCount} {
				if err := binary.Read(r, binary.LittleEndian, p); err != nil {
					return fmt.Errorf("read chunk fields: %w", err)
				}
			}
			var truncated uint8
			if err := binary.Read(r, binary.LittleEndian, &truncated); err != nil {
				return fmt.Errorf("read truncated flag: %w", err)
			}
			buf := make([]byte, int(dim)*4)
			if _, err := io.ReadFull(r, buf); err != nil {
				return fmt.Errorf("read vector: %w", err)
			}
			chunk := &models.Chunk{
				ID:         chunkID,
				DocumentID: docID,
				Position:   int(position),
				Text:       text,
				TokenCount: int(tokenCount),
				WordCount:  int(wordCount),
				Truncated:  truncated != 0,
			}
			loaded.vectors = append(loaded.vectors, bytesToFloat32s(buf))
			loaded.ordinals = append(loaded.ordinals, chunkID)
			loaded.chunks[chunkID] = chunk
			doc.ChunkIDs = append(doc.ChunkIDs, chunkID)
		}
		loaded.docs[docID] = doc
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dimension = loaded.dimension
	idx.vectors = loaded.vectors
	idx.ordinals = loaded.ordinals
	idx.chunks = loaded.chunks
	idx.docs = loaded.docs
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(buf), nil
}

func float32sToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32s(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
