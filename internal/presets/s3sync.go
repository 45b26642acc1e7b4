package presets

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Mirror pushes and pulls the full preset set as a single JSON blob
// in a bucket, so a fleet of cascade daemons can share one set of
// named scenes.
type S3Mirror struct {
	client *s3.S3
	bucket string
	key    string
}

// NewS3Mirror opens an S3 session for region and verifies bucket is
// reachable. prefix is joined with "presets.json" to form the object
// key.
func NewS3Mirror(region, bucket, prefix string) (*S3Mirror, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("presets: creating aws session: %w", err)
	}
	client := s3.New(sess)

	if _, err := client.HeadBucket(&s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("presets: accessing bucket %q: %w", bucket, err)
	}

	key := "presets.json"
	if prefix != "" {
		key = prefix + "/" + key
	}
	return &S3Mirror{client: client, bucket: bucket, key: key}, nil
}

// Push serializes every preset in store and uploads it as one object.
func (m *S3Mirror) Push(store *Store) error {
	presets, err := store.List()
	if err != nil {
		return err
	}
	body, err := json.Marshal(presets)
	if err != nil {
		return fmt.Errorf("presets: marshaling for upload: %w", err)
	}

	_, err = m.client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(m.key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("presets: uploading to s3: %w", err)
	}
	return nil
}

// Pull downloads the shared object and upserts every preset it
// contains into store. Local presets absent from the object are kept.
func (m *S3Mirror) Pull(store *Store) error {
	out, err := m.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.key),
	})
	if err != nil {
		return fmt.Errorf("presets: downloading from s3: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("presets: reading s3 object: %w", err)
	}

	var incoming []Preset
	if err := json.Unmarshal(body, &incoming); err != nil {
		return fmt.Errorf("presets: unmarshaling s3 object: %w", err)
	}

	for _, p := range incoming {
		if err := store.Save(p.Name, p.Pattern, p.Lamps); err != nil {
			return err
		}
	}
	return nil
}
