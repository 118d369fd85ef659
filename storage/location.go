package storage

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"

	"github.com/ndlib/depositor/store"
)

// splitBucketPrefix will take a path and separate the bucket name from a prefix, if any.
// It will also append "addition" to the prefix, and make sure the prefix returned is
// either empty or ends with a slash "/".
//
// examples:
//
//	"" -> ("", "")
//	"bucket" -> ("bucket", "")
//	"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string, addition string) (bucket, prefix string) {
	if location == "" {
		return
	}
	location = strings.TrimPrefix(location, "/")
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = v[1]
	}
	if addition != "" {
		prefix = path.Join(prefix, addition)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// ErrBadLocation means a store location could not be understood.
var ErrBadLocation = errors.New("bad store location")

// parseLocation creates the store described by the "location" option.
//
//	memory                          a new in-memory store
//	/path, file:///path             a FileSystem store, created if needed
//	s3:/bucket/prefix               an S3 store using the default AWS endpoint
//	s3://host:port/bucket/prefix    an S3 store on another service, e.g. Minio
//
// For s3 locations the options access_key, secret_key and region are used
// if present, otherwise the usual AWS environment is consulted.
func parseLocation(opts Options) (store.Store, error) {
	location := opts["location"]
	if location == "" {
		return nil, errors.Wrap(ErrMissingOption, "location")
	}
	if location == "memory" {
		return store.NewMemory(), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrap(ErrBadLocation, location)
	}
	switch u.Scheme {
	case "", "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		p = filepath.FromSlash(p)
		if err := os.MkdirAll(p, 0755); err != nil {
			return nil, err
		}
		return store.NewFileSystem(p), nil
	case "s3":
		conf := &aws.Config{
			Region: aws.String(opts.Get("region", "us-east-1")),
		}
		if u.Host != "" {
			conf.Endpoint = aws.String(u.Host)
			// disable SSL for local development
			if strings.Contains(u.Host, "localhost") {
				conf.DisableSSL = aws.Bool(true)
				conf.S3ForcePathStyle = aws.Bool(true)
			}
		}
		if opts["access_key"] != "" {
			conf.Credentials = credentials.NewStaticCredentials(opts["access_key"], opts["secret_key"], "")
		}
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		bucket, prefix := splitBucketPrefix(p, "")
		if bucket == "" {
			return nil, errors.Wrapf(ErrBadLocation, "no bucket name in %s", location)
		}
		sess, err := session.NewSession(conf)
		if err != nil {
			return nil, err
		}
		return store.NewS3(bucket, prefix, sess), nil
	}
	return nil, errors.Wrap(ErrBadLocation, location)
}
