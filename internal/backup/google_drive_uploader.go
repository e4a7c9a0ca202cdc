package backup

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dlukic/liftlab/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const rootFolderName = "liftlab-backup"

// GoogleDriveUploader ships backup archives to a dedicated folder on
// google drive.
type GoogleDriveUploader struct {
	service         *drive.Service
	backupsFolderId string
}

func NewGoogleDriveUploader(ctx context.Context, credentialsJson []byte) (*GoogleDriveUploader, error) {
	driveService, err := drive.NewService(ctx, option.WithCredentialsJSON(credentialsJson))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve drive client: %w", err)
	}

	driveRoot, err := driveService.
		Files.List().
		Fields("files(id, name)").
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve files: %w", err)
	}

	backupsFolderId := ""
	for _, f := range driveRoot.Files {
		if f.Name == rootFolderName {
			backupsFolderId = f.Id
			break
		}
	}

	u := &GoogleDriveUploader{
		service: driveService,
	}

	if backupsFolderId == "" {
		backupsFolderId, err = u.createRootBackupsFolder()
		if err != nil {
			return nil, fmt.Errorf("failed to create root backups folder: %w", err)
		}
		log.Debugf("root backups folder created: %s", backupsFolderId)
	}
	u.backupsFolderId = backupsFolderId

	log.Debugf("backups folder ID: %s", u.backupsFolderId)

	return u, nil
}

func (u *GoogleDriveUploader) Upload(ctx context.Context, name string, data []byte) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "backup.driveUpload")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	archiveMeta := &drive.File{
		Name:     name,
		MimeType: "application/gzip",
		Parents:  []string{u.backupsFolderId},
	}

	uploaded, err := u.service.
		Files.Create(archiveMeta).
		Fields("id, parents").
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("create drive file: %w", err)
	}

	log.Debugf("backup archive uploaded: %s (%s)", name, uploaded.Id)
	return nil
}

func (u *GoogleDriveUploader) createRootBackupsFolder() (string, error) {
	backupsFolderMeta := &drive.File{
		Name:     rootFolderName,
		MimeType: "application/vnd.google-apps.folder",
	}

	bfRes, err := u.service.
		Files.Create(backupsFolderMeta).
		Fields("id").
		Do()
	if err != nil {
		return "", err
	}

	return bfRes.Id, nil
}
