package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderCholiy/resume-safari/internal/resume"
	"github.com/AlexanderCholiy/resume-safari/internal/snapshot"
	"github.com/AlexanderCholiy/resume-safari/internal/tasks"
)

func developerResume() gin.H {
	return gin.H{
		"position": gin.H{"category": "Engineering", "title": "Developer"},
		"about_me": "  Backend engineer  ",
		"hard_skills": []gin.H{
			{"name": "Go", "grid_row": 1, "grid_column": 1},
			{"name": "SQL", "grid_row": 1, "grid_column": 2},
		},
		"soft_skills": []gin.H{
			{"name": "Teamwork", "grid_row": 2, "grid_column": 1},
		},
	}
}

func cellName(t *testing.T, grid any, row, col, i int) string {
	t.Helper()
	rows, ok := grid.([]any)
	require.True(t, ok, "grid is %T", grid)
	cell := rows[row].([]any)[col].([]any)[i].(map[string]any)
	return cell["name"].(string)
}

func TestResume_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice", false)
	bob := env.signUp(t, "bob", false)

	w := env.do(http.MethodPost, "/v1/resumes", developerResume(), alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "alice-developer", created["slug"])
	assert.Equal(t, "Backend engineer", created["about_me"])
	assert.Equal(t, false, created["is_published"])
	assert.Len(t, created["hard_skills"], 2)
	assert.Empty(t, env.queue.tasks)

	const path = "/v1/resumes/alice-developer"

	// 草稿只对所有者可见。
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, nil, bob).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, path, nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPatch, path, gin.H{"is_published": true}, bob).Code)

	w = env.do(http.MethodGet, path+"/grid", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, env.redis.values, snapshot.Key("alice-developer"))

	w = env.do(http.MethodPatch, path, gin.H{"is_published": true}, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["is_published"])
	require.Len(t, env.queue.tasks, 1)
	assert.Equal(t, tasks.TypeResumeSnapshot, env.queue.tasks[0].Type())

	w = env.do(http.MethodPatch, path, gin.H{"about_me": "mine now"}, bob)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(http.MethodGet, "/v1/resumes?category=engineering", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode(t, w)
	assert.EqualValues(t, 1, page["total"])
	summary := page["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "alice-developer", summary["slug"])
	assert.Equal(t, "alice", summary["owner"].(map[string]any)["username"])

	w = env.do(http.MethodGet, "/v1/resumes?q=nobody", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode(t, w)["total"])

	w = env.do(http.MethodGet, "/v1/resumes/mine", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)
	w = env.do(http.MethodGet, "/v1/resumes/mine", nil, bob)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["items"])

	w = env.do(http.MethodGet, path+"/grid", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	grids := decode(t, w)
	assert.Equal(t, "Go", cellName(t, grids["hard_skills"], 0, 0, 0))
	assert.Equal(t, "SQL", cellName(t, grids["hard_skills"], 0, 1, 0))
	assert.Equal(t, "Teamwork", cellName(t, grids["soft_skills"], 1, 0, 0))
	assert.Contains(t, env.redis.values, snapshot.Key("alice-developer"))

	w = env.do(http.MethodGet, path+"/grid", nil, bob)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, env.redis.values[snapshot.Key("alice-developer")], w.Body.String())

	w = env.do(http.MethodPut, path+"/nested", gin.H{"hard_skills": []gin.H{}}, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)
	assert.Empty(t, updated["hard_skills"])
	assert.Len(t, updated["soft_skills"], 1)
	assert.NotContains(t, env.redis.values, snapshot.Key("alice-developer"))
	assert.Len(t, env.queue.tasks, 2)

	w = env.do(http.MethodGet, path+"/grid", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	grids = decode(t, w)
	assert.NotContains(t, grids, "hard_skills")
	assert.Equal(t, "Teamwork", cellName(t, grids["soft_skills"], 1, 0, 0))

	assert.Equal(t, http.StatusForbidden, env.do(http.MethodDelete, path, nil, bob).Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, path, nil, alice).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, path, nil, alice).Code)
	assert.NotContains(t, env.redis.values, snapshot.Key("alice-developer"))
}

func TestResume_Rejections(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice", false)

	w := env.do(http.MethodPost, "/v1/resumes", developerResume(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/v1/resumes", developerResume(), alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/v1/resumes", developerResume(), alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, fieldsOf(t, w), "position")

	body := developerResume()
	body["position"] = gin.H{"category": "Engineering", "title": "Architect"}
	body["hard_skills"] = []gin.H{{"name": "Go", "grid_row": 11, "grid_column": 1}}
	w = env.do(http.MethodPost, "/v1/resumes", body, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body["hard_skills"] = []gin.H{
		{"name": "Go", "grid_row": 1, "grid_column": 1},
		{"name": " go ", "grid_row": 2, "grid_column": 1},
	}
	w = env.do(http.MethodPost, "/v1/resumes", body, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "duplicate", decode(t, w)["kind"])

	w = env.do(http.MethodGet, "/v1/resumes?page=-1", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/v1/resumes/missing/grid", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResume_DraftQuota(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice", false)

	for i := 0; i < 5; i++ {
		w := env.do(http.MethodPost, "/v1/resumes", gin.H{
			"position": gin.H{"category": "Engineering", "title": fmt.Sprintf("Role %d", i)},
		}, alice)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	w := env.do(http.MethodPost, "/v1/resumes", gin.H{
		"position": gin.H{"category": "Engineering", "title": "One Too Many"},
	}, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "capacity", decode(t, w)["kind"])
}

func TestGrid_StaleSnapshotOfDraftIsNotServed(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice", false)

	body := developerResume()
	body["is_published"] = true
	w := env.do(http.MethodPost, "/v1/resumes", body, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	const path = "/v1/resumes/alice-developer"
	w = env.do(http.MethodGet, path+"/grid", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var grids resume.Grids
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &grids))

	w = env.do(http.MethodPatch, path, gin.H{"is_published": false}, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, env.redis.values, snapshot.Key("alice-developer"))

	// 撤回前排队的任务晚到，又把快照写了回去。
	require.NoError(t, env.cache.Set(context.Background(), grids))

	w = env.do(http.MethodGet, path+"/grid", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, env.redis.values, snapshot.Key("alice-developer"))

	w = env.do(http.MethodGet, path+"/grid", nil, alice)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, env.redis.values, snapshot.Key("alice-developer"))
}

func TestGrid_SkillDescriptionChangeDropsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	staff := env.signUp(t, "root", true)
	alice := env.signUp(t, "alice", false)

	body := developerResume()
	body["is_published"] = true
	w := env.do(http.MethodPost, "/v1/resumes", body, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	const path = "/v1/resumes/alice-developer/grid"
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, path, nil, "").Code)
	require.Contains(t, env.redis.values, snapshot.Key("alice-developer"))

	// 只改名字大小写、不带描述的写入不影响快照。
	w = env.do(http.MethodPost, "/v1/soft-skills", gin.H{"name": "teamwork"}, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, env.redis.values, snapshot.Key("alice-developer"))

	w = env.do(http.MethodPost, "/v1/hard-skills", gin.H{"name": "go", "description": "systems language"}, staff)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, env.redis.values, snapshot.Key("alice-developer"))

	w = env.do(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	cell := decode(t, w)["hard_skills"].([]any)[0].([]any)[0].([]any)[0].(map[string]any)
	assert.Equal(t, "Go", cell["name"])
	assert.Equal(t, "systems language", cell["description"])
}
