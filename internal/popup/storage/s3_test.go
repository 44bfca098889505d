package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[*in.Key] = v
	return &s3.PutObjectOutput{}, nil
}

func TestS3Tier_RoundTripUnderPrefix(t *testing.T) {
	fake := &fakeS3{}
	tier := NewS3Tier(fake, "clipsmart", "installs/abc")
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, Record{"isPro": []byte(`true`)}))
	assert.Contains(t, fake.objects, "installs/abc/isPro.json")

	rec, err := tier.Get(ctx, "isPro")
	require.NoError(t, err)
	assert.Equal(t, []byte(`true`), []byte(rec["isPro"]))
}

func TestS3Tier_MissingObjectIsNotAnError(t *testing.T) {
	tier := NewS3Tier(&fakeS3{}, "clipsmart", "")
	ctx := context.Background()

	rec, err := tier.Get(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, rec)
}

func TestS3Tier_BackendErrorPropagates(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	tier := NewS3Tier(fake, "clipsmart", "")
	ctx := context.Background()

	_, err := tier.Get(ctx, "k")
	require.Error(t, err)

	err = tier.Set(ctx, Record{"k": []byte(`1`)})
	require.Error(t, err)
}
