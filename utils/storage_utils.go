package utils

import (
	"bytes"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ReceiptArchive uploads raw receipt payloads of anomalous purchases to an
// S3-compatible bucket so they can be investigated after the fact.
type ReceiptArchive struct {
	Bucket   string
	Region   string
	Endpoint string
	Folder   string
}

func NewReceiptArchive(bucket, region, endpoint string) *ReceiptArchive {
	return &ReceiptArchive{
		Bucket:   bucket,
		Region:   region,
		Endpoint: endpoint,
		Folder:   "receipts",
	}
}

func (a *ReceiptArchive) client() *s3.S3 {
	sess := session.Must(session.NewSession(&aws.Config{
		Region:   aws.String(a.Region),
		Endpoint: aws.String(a.Endpoint),
		Credentials: credentials.NewStaticCredentials(
			os.Getenv("S3_ACCESS_KEY"), os.Getenv("S3_SECRET_KEY"), "",
		),
	}))
	return s3.New(sess)
}

// ArchiveReceipt stores the payload under receipts/<fileName> and returns
// the object path.
func (a *ReceiptArchive) ArchiveReceipt(fileName string, payload []byte) (string, error) {
	filePath := fmt.Sprintf("%s/%s", a.Folder, fileName)

	_, err := a.client().PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(a.Bucket),
		Key:           aws.String(filePath),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
		ContentType:   aws.String("application/json"),
		ACL:           aws.String("private"),
	})
	if err != nil {
		return "", fmt.Errorf("unable to upload receipt to S3: %v", err)
	}

	return filePath, nil
}
