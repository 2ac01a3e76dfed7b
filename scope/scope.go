// Package scope streams the spectrum frames and the status of the acquisition pipeline to remote
// clients over gRPC.
package scope

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ftl/hamshack/dsp"
	"github.com/ftl/hamshack/sdr"
)

type FrameKind string

const (
	SpectralFrameKind FrameKind = "spectrum"
	StatusFrameKind   FrameKind = "status"
)

// SpectralFrame is a power spectrum in frequency order, i.e. the lowest frequency comes first.
type SpectralFrame struct {
	Timestamp       time.Time
	CenterFrequency int
	FromFrequency   int
	ToFrequency     int
	Values          []float32
}

func NewSpectralFrame(frame *sdr.Frame, sampleRate int) *SpectralFrame {
	mapping := dsp.NewFrequencyMapping(sampleRate, len(frame.Spectrum), frame.Frequency)
	return &SpectralFrame{
		Timestamp:       frame.Timestamp,
		CenterFrequency: frame.Frequency,
		FromFrequency:   mapping.FromFrequency(),
		ToFrequency:     mapping.ToFrequency(),
		Values:          dsp.Centered(frame.Spectrum),
	}
}

type StatusFrame struct {
	Timestamp time.Time
	sdr.Status
}

func encodeSpectralFrame(frame *SpectralFrame) *structpb.Struct {
	values := make([]*structpb.Value, len(frame.Values))
	for i, value := range frame.Values {
		values[i] = structpb.NewNumberValue(float64(value))
	}
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"kind":             structpb.NewStringValue(string(SpectralFrameKind)),
			"timestamp":        structpb.NewStringValue(frame.Timestamp.Format(time.RFC3339Nano)),
			"center_frequency": structpb.NewNumberValue(float64(frame.CenterFrequency)),
			"from_frequency":   structpb.NewNumberValue(float64(frame.FromFrequency)),
			"to_frequency":     structpb.NewNumberValue(float64(frame.ToFrequency)),
			"values":           structpb.NewListValue(&structpb.ListValue{Values: values}),
		},
	}
}

func encodeStatusFrame(frame *StatusFrame) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"kind":        structpb.NewStringValue(string(StatusFrameKind)),
			"timestamp":   structpb.NewStringValue(frame.Timestamp.Format(time.RFC3339Nano)),
			"running":     structpb.NewBoolValue(frame.Running),
			"frequency":   structpb.NewNumberValue(float64(frame.Frequency)),
			"sample_rate": structpb.NewNumberValue(float64(frame.SampleRate)),
			"gain":        structpb.NewNumberValue(frame.Gain),
		},
	}
}

func frameKind(frame *structpb.Struct) FrameKind {
	return FrameKind(frame.GetFields()["kind"].GetStringValue())
}

func decodeTimestamp(frame *structpb.Struct) (time.Time, error) {
	raw := frame.GetFields()["timestamp"].GetStringValue()
	result, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return result, nil
}

func decodeSpectralFrame(frame *structpb.Struct) (*SpectralFrame, error) {
	timestamp, err := decodeTimestamp(frame)
	if err != nil {
		return nil, err
	}
	fields := frame.GetFields()
	rawValues := fields["values"].GetListValue().GetValues()
	values := make([]float32, len(rawValues))
	for i, value := range rawValues {
		values[i] = float32(value.GetNumberValue())
	}

	return &SpectralFrame{
		Timestamp:       timestamp,
		CenterFrequency: int(fields["center_frequency"].GetNumberValue()),
		FromFrequency:   int(fields["from_frequency"].GetNumberValue()),
		ToFrequency:     int(fields["to_frequency"].GetNumberValue()),
		Values:          values,
	}, nil
}

func decodeStatusFrame(frame *structpb.Struct) (*StatusFrame, error) {
	timestamp, err := decodeTimestamp(frame)
	if err != nil {
		return nil, err
	}
	fields := frame.GetFields()

	return &StatusFrame{
		Timestamp: timestamp,
		Status: sdr.Status{
			Running:    fields["running"].GetBoolValue(),
			Frequency:  int(fields["frequency"].GetNumberValue()),
			SampleRate: int(fields["sample_rate"].GetNumberValue()),
			Gain:       fields["gain"].GetNumberValue(),
		},
	}, nil
}
