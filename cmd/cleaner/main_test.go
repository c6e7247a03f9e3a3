package main

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rodriv/photo-pipeline/internal/catalog"
	"github.com/rodriv/photo-pipeline/internal/photokey"
	"github.com/rodriv/photo-pipeline/internal/s3io"
)

type fakeS3 struct {
	listing []string
	deleted []string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return &s3.GetObjectOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		f.deleted = append(f.deleted, *obj.Key)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for _, k := range f.listing {
		contents = append(contents, types.Object{Key: aws.String(k)})
	}
	f.listing = nil
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

type fakeMeta struct {
	deletes  [][2]string
	prefixes []string
}

func (f *fakeMeta) Delete(ctx context.Context, dir, name string) error {
	f.deletes = append(f.deletes, [2]string{dir, name})
	return nil
}

func (f *fakeMeta) DeleteByPrefix(ctx context.Context, prefix string) error {
	f.prefixes = append(f.prefixes, prefix)
	return nil
}

func testApp(s3c *fakeS3, m *fakeMeta) *App {
	return &App{
		store: &s3io.Store{Client: s3c, Bucket: "photos-resized"},
		meta:  m,
		log:   zerolog.Nop(),
	}
}

func s3Record(key string) events.S3EventRecord {
	var rec events.S3EventRecord
	rec.S3.Bucket.Name = "photos-source"
	rec.S3.Object.Key = key
	return rec
}

func TestHandlerFileDelete(t *testing.T) {
	s3c := &fakeS3{}
	m := &fakeMeta{}
	app := testApp(s3c, m)

	err := app.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{s3Record("2021/spain/madrid/sunset.jpg")},
	})
	require.NoError(t, err)

	// Exactly the generated artifact set is deleted.
	id, err := photokey.Parse("2021/spain/madrid/sunset.jpg")
	require.NoError(t, err)
	require.Equal(t, catalog.Keys(id), s3c.deleted)

	require.Equal(t, [][2]string{{"2021/spain/madrid/", "sunset"}}, m.deletes)
	require.Empty(t, m.prefixes)
}

func TestHandlerPrefixDelete(t *testing.T) {
	s3c := &fakeS3{listing: []string{
		"2021/spain/madrid/sunset_small.webp",
		"2021/spain/madrid/sunset_small.jpeg",
	}}
	m := &fakeMeta{}
	app := testApp(s3c, m)

	err := app.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{s3Record("2021/spain/madrid")},
	})
	require.NoError(t, err)

	require.Len(t, s3c.deleted, 2)
	require.Equal(t, []string{"2021/spain/madrid"}, m.prefixes)
	require.Empty(t, m.deletes)
}

func TestHandlerDropsMalformedKeys(t *testing.T) {
	s3c := &fakeS3{}
	m := &fakeMeta{}
	app := testApp(s3c, m)

	err := app.handler(context.Background(), events.S3Event{
		Records: []events.S3EventRecord{
			s3Record("2021/spain/madrid/deep/extra.jpg"),
			s3Record("2021/%zz.jpg"),
		},
	})
	require.NoError(t, err)
	require.Empty(t, s3c.deleted)
	require.Empty(t, m.deletes)
}
