package services

import (
	"context"
	"fmt"
	"os"

	appContext "github.com/alphabatem/common/context"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// MinIOService archives generated documents and attachments so a resend
// still works after the local temp copy has been swept. Optional: when
// MINIO_ENDPOINT is unset the service stays disabled and callers fall
// back to local files only.
type MinIOService struct {
	appContext.DefaultService
	client     *minio.Client
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
}

const MINIO_SVC = "minio_svc"

func (svc MinIOService) Id() string {
	return MINIO_SVC
}

func (svc *MinIOService) Configure(ctx *appContext.Context) error {
	svc.endpoint = os.Getenv("MINIO_ENDPOINT")
	svc.accessKey = os.Getenv("MINIO_ACCESS_KEY")
	svc.secretKey = os.Getenv("MINIO_SECRET_KEY")
	svc.useSSL = os.Getenv("MINIO_USE_SSL") == "true"

	svc.bucketName = os.Getenv("MINIO_BUCKET_NAME")
	if svc.bucketName == "" {
		svc.bucketName = "scribeline-archive"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *MinIOService) Start() error {
	if svc.endpoint == "" {
		log.Warn("MINIO_ENDPOINT not set, attachment archive disabled")
		return nil
	}

	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	log.WithField("endpoint", svc.endpoint).Info("MinIO archive started")
	return nil
}

func (svc *MinIOService) Enabled() bool {
	return svc != nil && svc.client != nil
}

func (svc *MinIOService) ensureBucket() error {
	ctx := context.Background()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
		log.WithField("bucket", svc.bucketName).Info("Created MinIO bucket")
	}

	return nil
}

// Upload copies a local file into the archive bucket under objectName.
func (svc *MinIOService) Upload(objectName, path string) error {
	_, err := svc.client.FPutObject(context.Background(), svc.bucketName, objectName, path, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %v", objectName, err)
	}
	return nil
}

// Download restores an archived object to a local path.
func (svc *MinIOService) Download(objectName, path string) error {
	err := svc.client.FGetObject(context.Background(), svc.bucketName, objectName, path, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to download %s: %v", objectName, err)
	}
	return nil
}
