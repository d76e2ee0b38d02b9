package library

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"SoraStudio/backend/go/internal/models"
	pkghttp "SoraStudio/backend/go/pkg/http"
	"SoraStudio/backend/go/pkg/logger"

	"github.com/minio/minio-go/v7"
)

// presignExpiry 是视频下载链接的有效期。
const presignExpiry = 24 * time.Hour

// Object 是视频库中的一个条目。
type Object struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url"`
	TaskID       string    `json:"task_id,omitempty"`
}

// VideoLibrary 把任务成功后的视频产物归档到 MinIO：
// provider 侧的产物链接有时效性，finalize 把它固化到自己的对象存储里。
// 对象按 "<username>/<name>" 存放，天然按用户隔离。
type VideoLibrary struct {
	client *minio.Client
	bucket string
	http   *pkghttp.Client
	logger *logger.Logger
}

// NewVideoLibrary creates a new VideoLibrary.
func NewVideoLibrary(client *minio.Client, bucket string, httpClient *pkghttp.Client, log *logger.Logger) *VideoLibrary {
	return &VideoLibrary{client: client, bucket: bucket, http: httpClient, logger: log}
}

func objectName(username, taskID string) string {
	return fmt.Sprintf("%s/sora_%s.mp4", username, taskID)
}

// SaveFromTask 把任务的第一个产物下载并写入视频库。
// 同一个任务重复 finalize 时直接返回已存在的对象（幂等）。
func (l *VideoLibrary) SaveFromTask(ctx context.Context, task *models.VideoTask) (*Object, error) {
	if len(task.Results) == 0 || task.Results[0].URL == "" {
		return nil, fmt.Errorf("%w: task has no downloadable result", models.ErrInvalidInput)
	}
	name := objectName(task.Username, task.ID)

	// 已归档过的任务直接返回存量对象。
	if stat, err := l.client.StatObject(ctx, l.bucket, name, minio.StatObjectOptions{}); err == nil {
		return l.toObject(ctx, stat.Key, stat.Size, stat.LastModified, stat.UserMetadata["Task-Id"])
	}

	sourceURL := task.Results[0].URL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: download artifact: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: artifact download status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	_, err = l.client.PutObject(ctx, l.bucket, name, resp.Body, resp.ContentLength, minio.PutObjectOptions{
		ContentType:  "video/mp4",
		UserMetadata: map[string]string{"Task-Id": task.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	l.logger.WithPayload(map[string]interface{}{"object": name, "task_id": task.ID}).Info("视频已归档到视频库")

	stat, err := l.client.StatObject(ctx, l.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return l.toObject(ctx, stat.Key, stat.Size, stat.LastModified, task.ID)
}

// List 返回用户视频库中的全部对象，按归档时间倒序。
func (l *VideoLibrary) List(ctx context.Context, username string) ([]Object, error) {
	prefix := username + "/"
	objects := make([]Object, 0)
	for info := range l.client.ListObjects(ctx, l.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, info.Err)
		}
		obj, err := l.toObject(ctx, info.Key, info.Size, info.LastModified, "")
		if err != nil {
			return nil, err
		}
		objects = append(objects, *obj)
	}
	// ListObjects 按键名排序，这里按时间重排，最新的在前。
	for i := 0; i < len(objects); i++ {
		for j := i + 1; j < len(objects); j++ {
			if objects[j].LastModified.After(objects[i].LastModified) {
				objects[i], objects[j] = objects[j], objects[i]
			}
		}
	}
	return objects, nil
}

// Delete 删除用户视频库中的一个对象。
// name 只接受纯文件名，防止路径拼接越过用户前缀。
func (l *VideoLibrary) Delete(ctx context.Context, username, name string) error {
	name = strings.TrimSpace(name)
	if name == "" || path.Base(name) != name {
		return fmt.Errorf("%w: invalid video name", models.ErrInvalidInput)
	}
	key := username + "/" + name

	if _, err := l.client.StatObject(ctx, l.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return models.ErrVideoNotFound
		}
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	if err := l.client.RemoveObject(ctx, l.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// toObject 把对象信息包装为带临时下载链接的库条目。
func (l *VideoLibrary) toObject(ctx context.Context, key string, size int64, lastModified time.Time, taskID string) (*Object, error) {
	presigned, err := l.client.PresignedGetObject(ctx, l.bucket, key, presignExpiry, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return &Object{
		Name:         path.Base(key),
		Size:         size,
		LastModified: lastModified,
		URL:          presigned.String(),
		TaskID:       taskID,
	}, nil
}
