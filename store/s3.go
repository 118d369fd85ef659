package store

import (
	"io"
	"log"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	raven "github.com/getsentry/raven-go"
)

// A S3 store represents a store that is kept on AWS S3 storage, or on any
// service speaking the same API.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc      *s3.S3
	uploader *s3manager.Uploader
	Bucket   string
	Prefix   string
	sizes    *sizecache // keep HEAD info
}

var _ Store = &S3{}

// NewS3 creates a new S3 store. It will use the given bucket and will prepend
// prefix to all keys. This is to allow for a bucket to be used for more than
// one store. For example if prefix were "cache/" then an Open("hello") would
// look for the key "cache/hello" in the bucket. The authorization method and
// credentials in the session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	svc := s3.New(awsSession)
	return &S3{
		Bucket:   bucket,
		Prefix:   prefix,
		svc:      svc,
		uploader: s3manager.NewUploaderWithClient(svc),
		sizes:    newSizeCache(),
	}
}

// Open returns the content of the given key as a stream. The whole object
// is streamed in a single GET request.
func (s *S3) Open(key string) (io.ReadCloser, int64, error) {
	output, err := s.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			s.sizes.Set(key, sizeDeleted)
			return nil, 0, ErrNotExist
		}
		log.Println("S3 Open:", s.Prefix, key, err)
		return nil, 0, err
	}
	return output.Body, aws.Int64Value(output.ContentLength), nil
}

// Stat returns the size of the given key. Sizes are cached, which
// drastically cuts down on the number of HEAD requests.
func (s *S3) Stat(key string) (int64, error) {
	return s.sizes.Get(key, s.stat0)
}

// stat0 implements the actual HEAD request to s3. Returns either an error
// or the size. You probably want to call Stat().
func (s *S3) stat0(key string) (int64, error) {
	info, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, ErrNotExist
		}
		return 0, err
	}
	return aws.Int64Value(info.ContentLength), nil
}

// Create will return a WriteCloser to upload content to the given key. The
// data is streamed to the s3manager uploader, which switches to a multipart
// upload for large objects. The object exists once Close returns nil.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	_, err := s.Stat(key)
	if err == nil {
		return nil, ErrKeyExists
	} else if err != ErrNotExist {
		return nil, err
	}
	pr, pw := io.Pipe()
	w := &s3WriteCloser{
		pw:    pw,
		done:  make(chan error, 1),
		key:   key,
		sizes: s.sizes,
	}
	fullkey := s.Prefix + key
	go func() {
		_, err := s.uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(fullkey),
			Body:   pr,
		})
		if err != nil {
			log.Println("S3 upload:", fullkey, err)
			raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Key": fullkey})
		}
		// unblock any writer if the upload stopped early
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// Delete will remove the given key from the store. The store's Prefix is
// prepended first. It is not an error to delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		log.Println("S3 Delete:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
		return err
	}
	s.sizes.Set(key, sizeDeleted)
	return nil
}

// s3WriteCloser feeds an upload running in another goroutine.
type s3WriteCloser struct {
	pw    *io.PipeWriter
	done  chan error
	key   string
	sizes *sizecache
}

func (wc *s3WriteCloser) Write(p []byte) (int, error) {
	return wc.pw.Write(p)
}

// Close signals the end of the data and waits for the upload to finish.
func (wc *s3WriteCloser) Close() error {
	wc.pw.Close()
	err := <-wc.done
	// drop the cached miss from the Stat in Create
	wc.sizes.Forget(wc.key)
	return err
}

func isNotFound(err error) bool {
	if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == http.StatusNotFound {
		return true
	}
	if e, ok := err.(awserr.Error); ok {
		switch e.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
