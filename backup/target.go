package backup

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"time"

	"github.com/melbahja/goph"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/sftp"

	"github.com/kjk/phonebook/log"
)

// Target is a place we upload snapshots to
type Target interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	String() string
}

// MinioConfig describes S3-compatible storage (S3, Digital Ocean Spaces, minio)
type MinioConfig struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	// remote path prefix, e.g. "backups/phonebook"
	Prefix string `yaml:"prefix"`
	// use http instead of https
	Insecure bool   `yaml:"insecure"`
	Access   string `yaml:"access"`
	Secret   string `yaml:"secret"`
}

type MinioTarget struct {
	client *minio.Client
	config *MinioConfig
}

// NewMinioTarget doesn't talk to the server so it'll succeed even if
// the bucket doesn't exist
func NewMinioTarget(config *MinioConfig) (*MinioTarget, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return nil, errors.New("must provide endpoint, bucket, access and secret")
	}
	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: !c.Insecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioTarget{
		client: mc,
		config: config,
	}, nil
}

func (t *MinioTarget) remotePath(name string) string {
	return path.Join(t.config.Prefix, name)
}

func (t *MinioTarget) Upload(ctx context.Context, localPath string, remoteName string) error {
	remotePath := t.remotePath(remoteName)
	opts := minio.PutObjectOptions{
		ContentType: mime.TypeByExtension(filepath.Ext(remoteName)),
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}
	timeStart := time.Now()
	info, err := t.client.FPutObject(ctx, t.config.Bucket, remotePath, localPath, opts)
	if err != nil {
		return fmt.Errorf("FPutObject('%s') failed: %w", remotePath, err)
	}
	log.Logf("backup: uploaded '%s' (%d bytes) to %s in %s\n", localPath, info.Size, t, time.Since(timeStart))
	return nil
}

func (t *MinioTarget) String() string {
	return fmt.Sprintf("s3://%s/%s", t.config.Bucket, t.config.Prefix)
}

// SFTPConfig describes a server we upload snapshots to over ssh
type SFTPConfig struct {
	User string `yaml:"user"`
	Host string `yaml:"host"`
	// 22 if not set
	Port           int    `yaml:"port"`
	PrivateKeyPath string `yaml:"private_key_path"`
	// directory on the server, created if doesn't exist
	Dir string `yaml:"dir"`
}

type SFTPTarget struct {
	config *SFTPConfig
	auth   goph.Auth
}

func NewSFTPTarget(config *SFTPConfig) (*SFTPTarget, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if c.User == "" || c.Host == "" || c.PrivateKeyPath == "" || c.Dir == "" {
		return nil, errors.New("must provide user, host, private_key_path and dir")
	}
	auth, err := goph.Key(c.PrivateKeyPath, "")
	if err != nil {
		return nil, fmt.Errorf("goph.Key() failed with '%w'", err)
	}
	return &SFTPTarget{
		config: config,
		auth:   auth,
	}, nil
}

func (t *SFTPTarget) connect() (*goph.Client, error) {
	c := t.config
	port := c.Port
	if port == 0 {
		port = 22
	}
	callback, err := goph.DefaultKnownHosts()
	if err != nil {
		return nil, err
	}
	return goph.NewConn(&goph.Config{
		User:     c.User,
		Addr:     c.Host,
		Port:     uint(port),
		Auth:     t.auth,
		Timeout:  20 * time.Second,
		Callback: callback,
	})
}

func (t *SFTPTarget) Upload(ctx context.Context, localPath string, remoteName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := t.connect()
	if err != nil {
		return fmt.Errorf("ssh connection to %s failed: %w", t, err)
	}
	defer client.Close()

	sftpc, err := client.NewSftp()
	if err != nil {
		return fmt.Errorf("client.NewSftp() failed: %w", err)
	}
	err = sftpMkdirAll(sftpc, t.config.Dir)
	sftpc.Close()
	if err != nil {
		return err
	}

	remotePath := path.Join(t.config.Dir, remoteName)
	timeStart := time.Now()
	if err = client.Upload(localPath, remotePath); err != nil {
		return fmt.Errorf("client.Upload() failed: %w", err)
	}
	log.Logf("backup: uploaded '%s' to %s in %s\n", localPath, t, time.Since(timeStart))
	return nil
}

func sftpMkdirAll(c *sftp.Client, dir string) error {
	if st, err := c.Stat(dir); err == nil {
		if !st.IsDir() {
			return fmt.Errorf("'%s' on the server is not a directory", dir)
		}
		return nil
	}
	if err := c.MkdirAll(dir); err != nil {
		return fmt.Errorf("sftp.MkdirAll('%s') failed: %w", dir, err)
	}
	log.Logf("backup: created '%s' dir on the server\n", dir)
	return nil
}

func (t *SFTPTarget) String() string {
	return fmt.Sprintf("sftp://%s@%s%s", t.config.User, t.config.Host, t.config.Dir)
}
