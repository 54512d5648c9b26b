// fetch/storage.go
// Copyright(c) 2024-2026 gaggle contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	fpath "path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mmp/gaggle/log"
	"github.com/mmp/gaggle/util"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// StorageBackend is where fetched flight logs can be mirrored: a local
// directory, a GCS bucket, or an S3 bucket. Object paths use forward
// slashes regardless of backend.
type StorageBackend interface {
	List(prefix string) (map[string]int64, error)
	OpenRead(path string) (io.ReadCloser, error)
	Store(path string, r io.Reader) (int64, error)
	Close()
}

// MakeStorageBackend returns the backend for a mirror specification:
// "gs://bucket/prefix", "s3://bucket/prefix", or a local directory.
// The returned string is the object prefix within the backend.
func MakeStorageBackend(spec string) (StorageBackend, string, error) {
	switch {
	case strings.HasPrefix(spec, "gs://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(spec, "gs://"), "/")
		sb, err := MakeGCSBackend(bucket)
		return sb, prefix, err

	case strings.HasPrefix(spec, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(spec, "s3://"), "/")
		sb, err := MakeS3Backend(bucket)
		return sb, prefix, err

	default:
		sb, err := MakeDiskBackend(spec)
		return sb, "", err
	}
}

// Mirror copies the regular files in dir to the backend under prefix,
// skipping objects already present with matching size. Returns how many
// files were copied.
func Mirror(sb StorageBackend, dir, prefix string, lg *log.Logger) (int, error) {
	existing, err := sb.List(prefix)
	if err != nil {
		return 0, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return n, err
		}

		obj := path.Join(prefix, e.Name())
		if size, ok := existing[obj]; ok && size == info.Size() {
			lg.Debugf("%s: already mirrored", obj)
			continue
		}

		r, err := os.Open(fpath.Join(dir, e.Name()))
		if err != nil {
			return n, err
		}
		nb, err := sb.Store(obj, r)
		r.Close()
		if err != nil {
			return n, fmt.Errorf("%s: %w", obj, err)
		}
		lg.Infof("%s: mirrored %d bytes", obj, nb)
		n++
	}
	return n, nil
}

// Restore copies the objects under prefix into dir, skipping files
// already present with matching size. Returns how many were copied.
func Restore(sb StorageBackend, prefix, dir string, lg *log.Logger) (int, error) {
	objects, err := sb.List(prefix)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, err
	}

	n := 0
	for _, obj := range util.SortedMapKeys(objects) {
		dst := fpath.Join(dir, path.Base(obj))
		if info, err := os.Stat(dst); err == nil && info.Size() == objects[obj] {
			lg.Debugf("%s: already present", dst)
			continue
		}

		r, err := sb.OpenRead(obj)
		if err != nil {
			return n, fmt.Errorf("%s: %w", obj, err)
		}

		tmpFile := dst + ".tmp"
		fw, err := os.Create(tmpFile)
		if err != nil {
			r.Close()
			return n, err
		}
		_, cperr := io.Copy(fw, r)
		r.Close()
		if err := fw.Close(); cperr == nil {
			cperr = err
		}
		if cperr != nil {
			os.Remove(tmpFile)
			return n, fmt.Errorf("%s: %w", obj, cperr)
		}
		if err := os.Rename(tmpFile, dst); err != nil {
			os.Remove(tmpFile)
			return n, err
		}

		lg.Infof("%s: restored from mirror", dst)
		n++
	}
	return n, nil
}

///////////////////////////////////////////////////////////////////////////
// Local directory

type DiskBackend struct {
	root string
}

func MakeDiskBackend(root string) (StorageBackend, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	return &DiskBackend{root: root}, nil
}

func (d *DiskBackend) List(prefix string) (map[string]int64, error) {
	m := make(map[string]int64)
	base := fpath.Join(d.root, fpath.FromSlash(prefix))
	err := fpath.WalkDir(base, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // nothing stored under this prefix yet
			}
			return err
		}
		if de.IsDir() {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		rel, err := fpath.Rel(d.root, p)
		if err != nil {
			return err
		}
		m[fpath.ToSlash(rel)] = info.Size()
		return nil
	})
	return m, err
}

func (d *DiskBackend) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(fpath.Join(d.root, fpath.FromSlash(path)))
}

func (d *DiskBackend) Store(path string, r io.Reader) (int64, error) {
	full := fpath.Join(d.root, fpath.FromSlash(path))
	if err := os.MkdirAll(fpath.Dir(full), 0755); err != nil {
		return 0, err
	}

	tmpFile := full + ".tmp"
	fw, err := os.Create(tmpFile)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(fw, r)
	if cerr := fw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpFile)
		return n, err
	}
	if err := os.Rename(tmpFile, full); err != nil {
		os.Remove(tmpFile)
		return n, err
	}
	return n, nil
}

func (d *DiskBackend) Close() {}

///////////////////////////////////////////////////////////////////////////
// Google Cloud Storage

type GCSBackend struct {
	ctx    context.Context
	client *storage.Client
	bucket *storage.BucketHandle
}

func MakeGCSBackend(bucketName string) (StorageBackend, error) {
	credsJSON := os.Getenv("GAGGLE_GCS_CREDENTIALS")
	if credsJSON == "" {
		return nil, fmt.Errorf("GAGGLE_GCS_CREDENTIALS environment variable not set")
	}

	client, err := storage.NewClient(context.Background(), option.WithCredentialsJSON([]byte(credsJSON)))
	if err != nil {
		return nil, err
	}

	return &GCSBackend{
		ctx:    context.Background(),
		client: client,
		bucket: client.Bucket(bucketName),
	}, nil
}

func (g *GCSBackend) List(prefix string) (map[string]int64, error) {
	if prefix != "" {
		prefix = path.Clean(prefix)
	}
	query := storage.Query{
		Projection: storage.ProjectionNoACL,
		Prefix:     prefix,
	}

	m := make(map[string]int64)
	it := g.bucket.Objects(g.ctx, &query)
	for {
		if obj, err := it.Next(); err == iterator.Done {
			break
		} else if err != nil {
			return nil, err
		} else if path.Clean(obj.Name) != prefix { // don't return the root ~folder
			m[obj.Name] = obj.Size
		}
	}

	return m, nil
}

func (g *GCSBackend) OpenRead(path string) (io.ReadCloser, error) {
	return g.bucket.Object(path).NewReader(g.ctx)
}

func (g *GCSBackend) Store(path string, r io.Reader) (int64, error) {
	objw := g.bucket.Object(path).NewWriter(g.ctx)
	n, err := io.Copy(objw, r)
	if err != nil {
		return n, err
	}
	return n, objw.Close()
}

func (g *GCSBackend) Close() { g.client.Close() }

///////////////////////////////////////////////////////////////////////////
// Amazon S3

type S3Backend struct {
	ctx    context.Context
	client *s3.Client
	bucket string
}

// MakeS3Backend uses the SDK's default credential chain; set
// GAGGLE_S3_CREDENTIALS to "keyID:secret" to override it.
func MakeS3Backend(bucketName string) (StorageBackend, error) {
	ctx := context.Background()

	var cfg aws.Config
	var err error
	if creds := os.Getenv("GAGGLE_S3_CREDENTIALS"); creds != "" {
		keyID, secret, ok := strings.Cut(creds, ":")
		if !ok {
			return nil, fmt.Errorf("GAGGLE_S3_CREDENTIALS: expected \"keyID:secret\"")
		}
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(keyID, secret, "")))
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, err
	}

	return &S3Backend{
		ctx:    ctx,
		client: s3.NewFromConfig(cfg),
		bucket: bucketName,
	}, nil
}

func (s *S3Backend) List(prefix string) (map[string]int64, error) {
	m := make(map[string]int64)
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(s.ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			m[aws.ToString(obj.Key)] = aws.ToInt64(obj.Size)
		}
	}
	return m, nil
}

func (s *S3Backend) OpenRead(path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (s *S3Backend) Store(path string, r io.Reader) (int64, error) {
	// Buffer so the SDK can sign a known-length payload.
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	_, err = s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(b),
	})
	return int64(len(b)), err
}

func (s *S3Backend) Close() {}
