package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"regionsim/physics/internal/params"
	"regionsim/physics/internal/scene"
)

// Command names understood by the console.
const (
	CommandGet   = "get"
	CommandSet   = "set"
	CommandList  = "list"
	CommandStats = "stats"
)

// Response types.
const (
	TypeResult = "result"
	TypeError  = "error"
	TypeNotice = "notice"
)

// Request is one console command.
type Request struct {
	ID      string   `json:"id,omitempty"`
	Command string   `json:"cmd"`
	Name    string   `json:"name,omitempty"`
	Value   *float64 `json:"value,omitempty"`
	Target  string   `json:"target,omitempty"`
	// Seq, when non-zero, must increase on every command of a connection.
	Seq uint64 `json:"seq,omitempty"`
}

// Response answers a Request or announces a change to every client.
type Response struct {
	ID         string                 `json:"id,omitempty"`
	Type       string                 `json:"type"`
	Command    string                 `json:"cmd,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Value      *float64               `json:"value,omitempty"`
	Parameters []scene.ParameterEntry `json:"parameters,omitempty"`
	Stats      json.RawMessage        `json:"stats,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Notice     string                 `json:"notice,omitempty"`
}

var errForbidden = errors.New("token does not allow parameter changes")

func isMutation(req Request) bool {
	return strings.EqualFold(strings.TrimSpace(req.Command), CommandSet)
}

func dropMessage(reason DropReason) string {
	switch reason {
	case DropReasonSequence:
		return "stale sequence"
	case DropReasonRateLimited:
		return "too many parameter changes"
	default:
		return "dropped"
	}
}

// execute runs one request on behalf of who. The notice is non-empty when
// the command changed state every client should hear about.
func (s *Server) execute(who Identity, req Request) (Response, string) {
	resp := Response{ID: req.ID, Type: TypeResult, Command: strings.ToLower(strings.TrimSpace(req.Command))}
	fail := func(err error) (Response, string) {
		resp.Type = TypeError
		resp.Error = err.Error()
		return resp, ""
	}

	switch resp.Command {
	case CommandGet:
		value, err := s.scene.GetParameter(req.Name)
		if err != nil {
			return fail(err)
		}
		resp.Name = req.Name
		resp.Value = &value
		return resp, ""

	case CommandSet:
		//1.- Writes need a tune-scoped token and a concrete value.
		if !who.CanTune {
			return fail(errForbidden)
		}
		if req.Value == nil {
			return fail(errors.New("value required"))
		}
		target, err := params.ParseTarget(req.Target)
		if err != nil {
			return fail(err)
		}
		if err := s.scene.SetParameter(req.Name, *req.Value, target); err != nil {
			return fail(err)
		}
		resp.Name = req.Name
		resp.Value = req.Value
		return resp, fmt.Sprintf("%s set %s=%g for %s", who.Subject, req.Name, *req.Value, target)

	case CommandList:
		resp.Parameters = s.scene.ParameterList()
		return resp, ""

	case CommandStats:
		stats, err := encodeStats(s.scene.RegionName(), s.scene.Ready(), s.scene.StepStats(), s.Drops())
		if err != nil {
			return fail(err)
		}
		resp.Stats = stats
		return resp, ""

	default:
		return fail(fmt.Errorf("unknown command %q", req.Command))
	}
}

// encodeStats renders step statistics as a protobuf Struct in canonical JSON.
func encodeStats(region string, ready bool, stats scene.StepStats, drops DropCounters) (json.RawMessage, error) {
	value, err := structpb.NewStruct(map[string]interface{}{
		"region":                  region,
		"ready":                   ready,
		"step":                    float64(stats.Step),
		"taints_flushed":          stats.TaintsFlushed,
		"substeps":                stats.SubSteps,
		"collisions":              stats.Collisions,
		"updates":                 stats.Updates,
		"objects":                 stats.Objects,
		"objects_with_collisions": stats.ObjectsWithCollisions,
		"engine_seconds":          stats.EngineTime.Seconds(),
		"engine_failures":         float64(stats.EngineFailures),
		"rate":                    stats.Rate,
		"console_sequence_drops":  float64(drops.Sequence),
		"console_rate_limited":    float64(drops.RateLimited),
	})
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	raw, err := protojson.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}
	return json.RawMessage(raw), nil
}
