package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	key := objectKey(PrefixSubmissions, "../../etc/my photo!.JPG")
	assert.True(t, strings.HasPrefix(key, "submissions/"))
	assert.True(t, strings.HasSuffix(key, "-my_photo_.JPG"))
	assert.True(t, validKey(key))

	assert.NotEqual(t, objectKey(PrefixTickets, "a.jpg"), objectKey(PrefixTickets, "a.jpg"))
	assert.True(t, strings.HasSuffix(objectKey(PrefixTickets, "..."), "-upload"))
}

func TestValidKey(t *testing.T) {
	assert.True(t, validKey("tickets/123-a.jpg"))
	assert.False(t, validKey(""))
	assert.False(t, validKey("/etc/passwd"))
	assert.False(t, validKey("tickets/../../etc/passwd"))
	assert.False(t, validKey(`tickets\a.jpg`))
}

func TestLocal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	key, err := l.Save(ctx, PrefixSubmissions, "bike.jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)

	rc, err := l.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, l.Delete(ctx, key))
	_, err = l.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	// second delete is a no-op
	assert.NoError(t, l.Delete(ctx, key))
	assert.Error(t, l.Delete(ctx, "../outside"))
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	s := &S3{client: fake, bucket: "evidence"}

	key, err := s.Save(ctx, PrefixTickets, "receipt.png", []byte("png"))
	require.NoError(t, err)
	assert.Contains(t, fake.objects, key)

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "png", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}
