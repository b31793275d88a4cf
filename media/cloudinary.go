// Package media signs direct-to-Cloudinary uploads for session recordings.
package media

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var ErrNotConfigured = errors.New("recording uploads are not configured")

// UploadSignature is what a client needs to upload straight to Cloudinary.
type UploadSignature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	APIKey    string `json:"api_key"`
	CloudName string `json:"cloud_name"`
	Folder    string `json:"folder"`
	PublicID  string `json:"public_id"`
}

type RecordingSigner struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewRecordingSigner returns nil, nil when cloudinaryURL is empty.
func NewRecordingSigner(cloudinaryURL, folder string) (*RecordingSigner, error) {
	if cloudinaryURL == "" {
		return nil, nil
	}
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &RecordingSigner{cld: cld, folder: folder}, nil
}

// Sign produces an upload signature for the recording of one session room. The public id is
// the room id, so the stored reference maps back to the session.
func (s *RecordingSigner) Sign(roomID string, at time.Time) (UploadSignature, error) {
	if s == nil {
		return UploadSignature{}, ErrNotConfigured
	}
	params, err := api.StructToParams(uploader.UploadParams{
		Folder:   s.folder,
		PublicID: roomID,
	})
	if err != nil {
		return UploadSignature{}, fmt.Errorf("prepare signature params: %w", err)
	}
	ts := at.Unix()
	params.Set("timestamp", strconv.FormatInt(ts, 10))

	signature, err := api.SignParameters(params, s.cld.Config.Cloud.APISecret)
	if err != nil {
		return UploadSignature{}, fmt.Errorf("sign upload params: %w", err)
	}
	return UploadSignature{
		Signature: signature,
		Timestamp: ts,
		APIKey:    s.cld.Config.Cloud.APIKey,
		CloudName: s.cld.Config.Cloud.CloudName,
		Folder:    s.folder,
		PublicID:  roomID,
	}, nil
}

// RecordingRef is the reference stored on the session once the upload lands.
func (s *RecordingSigner) RecordingRef(roomID string) string {
	if s == nil || s.folder == "" {
		return roomID
	}
	return s.folder + "/" + roomID
}
