package paramstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves values from a map and records every requested batch.
type fakeAPI struct {
	values  map[string]string
	err     error
	batches [][]string
	decrypt []bool
}

func (f *fakeAPI) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, append([]string(nil), in.Names...))
	f.decrypt = append(f.decrypt, in.WithDecryption != nil && *in.WithDecryption)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		v, ok := f.values[name]
		if !ok {
			out.InvalidParameters = append(out.InvalidParameters, name)
			continue
		}
		out.Parameters = append(out.Parameters, types.Parameter{Name: strPtr(name), Value: strPtr(v)})
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func TestLookup_HappyPath(t *testing.T) {
	api := &fakeAPI{values: map[string]string{
		"/leo/api_base_url": "https://leo.example.org/api/v1",
		"/leo/language":     "hi",
	}}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.Lookup(context.Background(), "/leo/", "api_base_url", "language", "intent_threshold")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"api_base_url": "https://leo.example.org/api/v1",
		"language":     "hi",
	}, got)
	require.Equal(t, [][]string{{"/leo/api_base_url", "/leo/language", "/leo/intent_threshold"}}, api.batches)
	require.Equal(t, []bool{true}, api.decrypt)
}

func TestLookup_Batches(t *testing.T) {
	api := &fakeAPI{values: map[string]string{}}
	keys := make([]string, 0, 23)
	for i := 0; i < 23; i++ {
		key := fmt.Sprintf("k%02d", i)
		keys = append(keys, key)
		api.values["/p/"+key] = key
	}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.Lookup(context.Background(), "/p", keys...)
	require.NoError(t, err)
	require.Len(t, got, 23)
	require.Len(t, api.batches, 3)
	require.Len(t, api.batches[0], 10)
	require.Len(t, api.batches[2], 3)
}

func TestLookup_SkipsBlankAndDuplicateKeys(t *testing.T) {
	api := &fakeAPI{values: map[string]string{"/p/a": "1"}}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.Lookup(context.Background(), "/p", "a", " ", "/a/", "a")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1"}, got)
	require.Equal(t, [][]string{{"/p/a"}}, api.batches)
}

func TestLookup_NoKeys(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)

	got, err := client.Lookup(context.Background(), "/p")
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, api.batches)
}

func TestLookup_ApiError(t *testing.T) {
	api := &fakeAPI{err: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.Lookup(context.Background(), "/p", "a")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
	require.ErrorIs(t, err, api.err)
}

func TestLookup_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).Lookup(context.Background(), "/p", "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestLookup_EmptyPrefix(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)
	_, err = client.Lookup(context.Background(), " / ", "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}
