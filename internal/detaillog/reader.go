package detaillog

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"regionsim/physics/internal/engine"
)

// Event is one decoded detail log line.
type Event struct {
	Step       uint64
	CapturedAt time.Time
	Message    string
}

// Dump is one decoded physical dump frame.
type Dump struct {
	Step        uint64
	SimulatedMs int64
	CapturedAt  time.Time
	Bodies      []engine.EntityProperties
}

// ReadManifest loads the manifest of a session directory.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Manifest{}, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.Version <= 0 || manifest.Version > ManifestVersion {
		return Manifest{}, fmt.Errorf("unsupported manifest version %d", manifest.Version)
	}
	return manifest, nil
}

// ReadEvents decodes every event segment of a session in order.
func ReadEvents(dir string) ([]Event, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, segment := range manifest.EventSegments {
		decoded, err := readSegment(filepath.Join(dir, segment))
		if err != nil {
			return nil, fmt.Errorf("segment %s: %w", segment, err)
		}
		events = append(events, decoded...)
	}
	return events, nil
}

func readSegment(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record eventRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		captured, err := time.Parse(time.RFC3339Nano, record.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		events = append(events, Event{Step: record.Step, CapturedAt: captured, Message: record.Message})
	}
	return events, scanner.Err()
}

// ReadDumps decodes every physical dump frame of a session.
func ReadDumps(dir string) ([]Dump, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest.DumpsPath == "" {
		return nil, nil
	}
	file, err := os.Open(filepath.Join(dir, manifest.DumpsPath))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var dumps []Dump
	header := make([]byte, 8+8+8+4)
	record := make([]byte, bodyRecordSize)
	for {
		//1.- A clean EOF on a frame boundary ends the stream.
		if _, err := io.ReadFull(decoder, header); err != nil {
			if errors.Is(err, io.EOF) {
				return dumps, nil
			}
			return nil, fmt.Errorf("read dump header: %w", err)
		}
		dump := Dump{
			Step:        binary.LittleEndian.Uint64(header[0:8]),
			SimulatedMs: int64(binary.LittleEndian.Uint64(header[8:16])),
			CapturedAt:  time.Unix(0, int64(binary.LittleEndian.Uint64(header[16:24]))).UTC(),
		}
		count := binary.LittleEndian.Uint32(header[24:28])
		dump.Bodies = make([]engine.EntityProperties, 0, count)
		for i := uint32(0); i < count; i++ {
			if _, err := io.ReadFull(decoder, record); err != nil {
				return nil, fmt.Errorf("read dump body: %w", err)
			}
			dump.Bodies = append(dump.Bodies, decodeBody(record))
		}
		dumps = append(dumps, dump)
	}
}

func decodeBody(buf []byte) engine.EntityProperties {
	body := engine.EntityProperties{ID: binary.LittleEndian.Uint32(buf[0:4])}
	offset := 4
	next := func() float64 {
		v := math.Float64frombits(binary.LittleEndian.Uint64(buf[offset : offset+8]))
		offset += 8
		return v
	}
	vec := func() mgl64.Vec3 {
		return mgl64.Vec3{next(), next(), next()}
	}
	body.Position = vec()
	body.Rotation.W = next()
	body.Rotation.V = vec()
	body.Velocity = vec()
	body.Acceleration = vec()
	body.AngularVelocity = vec()
	return body
}
