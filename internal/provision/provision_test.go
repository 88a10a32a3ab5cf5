package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"digest_bot/internal/channel"
	"digest_bot/internal/model"
)

func TestComputeName(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{name: "short version", key: "0.18", want: "0.18里程碑"},
		{name: "empty key", key: "", want: "里程碑"},
		{name: "odd narrow width rounds up", key: "0.1", want: "0.1里程碑"},
		{name: "five narrow", key: "0.18x", want: "0.18x里程"},
		{name: "seven narrow", key: "0.18.10", want: "0.18.10里"},
		{name: "eight narrow fills budget", key: "v0.18.10", want: "v0.18.10里"},
		{name: "nine narrow fills budget", key: "v0.18.1-1", want: "v0.18.1-1"},
		{name: "narrow over budget", key: "1.0.0-beta.1", want: "1.0.0-beta.1"},
		{name: "wide characters", key: "测试", want: "测试里程碑"},
		{name: "four wide", key: "测试版本", want: "测试版本里"},
		{name: "wide over budget", key: "第一个大版本", want: "第一个大版本"},
		{name: "fullwidth digits", key: "０.１８", want: "０.１８里"},
		{name: "mixed", key: "v1测试", want: "v1测试里程"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ComputeName(tt.key)); diff != "" {
				t.Errorf("ComputeName(%q) mismatch (-want +got):\n%s", tt.key, diff)
			}
		})
	}
}

func TestComputeNameDeterministic(t *testing.T) {
	for _, key := range []string{"0.18", "测试", "1.0.0-beta.1"} {
		require.Equal(t, ComputeName(key), ComputeName(key))
	}
}

type fakeChannels struct {
	list      []channel.SubChannel
	listErr   error
	createErr error
	listCalls int
	created   []string
}

func (f *fakeChannels) ListChannels(context.Context, string) ([]channel.SubChannel, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func (f *fakeChannels) CreateChannel(_ context.Context, _ string, name string) (channel.SubChannel, error) {
	if f.createErr != nil {
		return channel.SubChannel{}, f.createErr
	}
	f.created = append(f.created, name)
	return channel.SubChannel{ID: "new-" + name, Name: name}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveOrCreate(t *testing.T) {
	ctx := context.Background()
	fake := &fakeChannels{list: []channel.SubChannel{
		{ID: "100", Name: "0.17里程碑"},
		{ID: "101", Name: "0.17里程碑"},
		{ID: "102", Name: "闲聊"},
	}}
	p := New(fake, "g1", discardLogger())

	got, err := p.ResolveOrCreate(ctx, "0.17")
	require.NoError(t, err)
	require.Equal(t, model.Destination{ID: "100", Name: "0.17里程碑"}, got)

	got, err = p.ResolveOrCreate(ctx, "0.18")
	require.NoError(t, err)
	require.Equal(t, model.Destination{ID: "new-0.18里程碑", Name: "0.18里程碑"}, got)

	// The created destination is reused without another create or list.
	got, err = p.ResolveOrCreate(ctx, "0.18")
	require.NoError(t, err)
	require.Equal(t, "new-0.18里程碑", got.ID)

	require.Equal(t, 1, fake.listCalls)
	require.Equal(t, []string{"0.18里程碑"}, fake.created)

	p.Reset()
	_, err = p.ResolveOrCreate(ctx, "0.17")
	require.NoError(t, err)
	require.Equal(t, 2, fake.listCalls)
}

func TestResolveOrCreateErrors(t *testing.T) {
	boom := errors.New("quota exceeded")

	tests := []struct {
		name string
		fake *fakeChannels
	}{
		{name: "list fails", fake: &fakeChannels{listErr: boom}},
		{name: "create fails", fake: &fakeChannels{createErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.fake, "g1", discardLogger())
			_, err := p.ResolveOrCreate(context.Background(), "0.18")
			require.ErrorIs(t, err, boom)
		})
	}
}

func TestResolveOrCreateRetriesListAfterFailure(t *testing.T) {
	fake := &fakeChannels{listErr: errors.New("timeout")}
	p := New(fake, "g1", discardLogger())

	_, err := p.ResolveOrCreate(context.Background(), "0.18")
	require.Error(t, err)

	fake.listErr = nil
	fake.list = []channel.SubChannel{{ID: "200", Name: "0.18里程碑"}}
	got, err := p.ResolveOrCreate(context.Background(), "0.18")
	require.NoError(t, err)
	require.Equal(t, "200", got.ID)
	require.Equal(t, 2, fake.listCalls)
}
