package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/AlexanderCholiy/resume-safari/internal/auth"
	"github.com/AlexanderCholiy/resume-safari/internal/config"
	"github.com/AlexanderCholiy/resume-safari/internal/database"
	"github.com/AlexanderCholiy/resume-safari/internal/database/dbtest"
	"github.com/AlexanderCholiy/resume-safari/internal/logger"
	"github.com/AlexanderCholiy/resume-safari/internal/profile"
	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
)

func init() { gin.SetMode(gin.TestMode) }

const testPassword = "Tr0ub4dor&3x"

// memoryRedis 同时充当会话存储与快照缓存。
type memoryRedis struct {
	values map[string]string
	ttl    map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memoryRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	n, _ := strconv.ParseInt(m.values[key], 10, 64)
	n++
	m.values[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (m *memoryRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.ttl[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *memoryRedis) TTL(_ context.Context, key string) *redis.DurationCmd {
	if _, ok := m.values[key]; !ok {
		return redis.NewDurationResult(-2, nil)
	}
	return redis.NewDurationResult(m.ttl[key], nil)
}

func (m *memoryRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	default:
		m.values[key] = fmt.Sprint(v)
	}
	m.ttl[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			delete(m.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type recordingQueue struct{ tasks []*asynq.Task }

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.tasks))}, nil
}

type fakeStorage struct {
	uploaded map[string][]byte
	deleted  []string
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://files.example.invalid/" + objectKey, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

type scannerFunc func(io.Reader) error

func (f scannerFunc) Scan(r io.Reader) error { return f(r) }

// fakeNotify 把订阅请求记录下来，负载由测试直接写入。
type fakeNotify struct {
	subscribed chan string
	payloads   chan string
}

func (f *fakeNotify) Subscribe(_ context.Context, channel string) (<-chan string, func() error) {
	f.subscribed <- channel
	return f.payloads, func() error { return nil }
}

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	redis   *memoryRedis
	queue   *recordingQueue
	storage *fakeStorage
	notify  *fakeNotify
	auth    *auth.AuthService
	cache   *snapshot.Cache
	scanErr error
}

func newAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	s, err := auth.NewAuthService(privatePEM, publicPEM, time.Minute, time.Hour)
	require.NoError(t, err)
	return s
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		API: config.APIConfig{InternalSecret: "s3cret"},
		Auth: config.AuthConfig{
			LoginRateLimitPerHour: 20,
			LoginLockThreshold:    3,
			LoginLockTTL:          time.Minute,
		},
		Limits: config.LimitsConfig{
			GridMaxRows:               10,
			GridMaxCols:               5,
			MaxPublishedResumes:       3,
			MaxDraftResumes:           5,
			MaxEducationAndExperience: 50,
			AboutMeMaxLength:          2000,
			AvatarMaxBytes:            1 << 20,
		},
	}

	env := &testEnv{
		db:      dbtest.Open(t),
		redis:   newMemoryRedis(),
		queue:   &recordingQueue{},
		storage: &fakeStorage{uploaded: map[string][]byte{}},
		notify:  &fakeNotify{subscribed: make(chan string, 4), payloads: make(chan string, 4)},
		auth:    newAuthService(t),
	}
	cache := snapshot.NewCache(env.redis, time.Hour)
	env.cache = cache
	scheduler := snapshot.NewScheduler(cache, env.queue, logger.Nop())

	env.router = NewRouter(logger.Nop(), cfg.API.InternalSecret)
	RegisterRoutes(env.router, Dependencies{
		Config:    cfg,
		DB:        env.db,
		Auth:      env.auth,
		Sessions:  env.redis,
		Notify:    env.notify,
		Resumes:   resume.NewService(env.db, cfg.Limits, scheduler, logger.Nop()),
		Profiles:  profile.NewService(env.db, cfg.Limits.MaxEducationAndExperience),
		Snapshots: cache,
		Avatars:   env.storage,
		Scanner:   scannerFunc(func(io.Reader) error { return env.scanErr }),
		Logger:    logger.Nop(),
	})
	return env
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, username string) {
	t.Helper()
	w := e.do(http.MethodPost, "/v1/auth/register", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (e *testEnv) login(t *testing.T, username string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/v1/auth/login", gin.H{"username": username, "password": testPassword}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["access_token"].(string)
}

// signUp 注册并登录，staff 为 true 时先提升为管理员。
func (e *testEnv) signUp(t *testing.T, username string, staff bool) string {
	t.Helper()
	e.register(t, username)
	if staff {
		require.NoError(t, e.db.Model(&database.User{}).Where("username = ?", username).Update("is_staff", true).Error)
	}
	return e.login(t, username)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func fieldsOf(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	fields, ok := decode(t, w)["fields"].(map[string]any)
	require.True(t, ok, w.Body.String())
	return fields
}
