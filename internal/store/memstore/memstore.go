// Package memstore is an in-memory store.Store used by tests and by the
// server when no database is configured.
package memstore

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

var _ store.Store = (*MemStore)(nil)

// MemStore keeps every entity in maps guarded by a single mutex. Returned
// values are copies.
type MemStore struct {
	mu sync.Mutex

	launches     map[int64]models.Launch
	items        map[int64]models.TestItem
	logs         map[int64]models.Log
	templates    map[int64]models.PatternTemplate
	matches      map[models.PatternMatch]struct{}
	clusters     map[int64]models.Cluster
	clusterItems map[models.ClusterTestItem]struct{}
	attributes   []models.ItemAttribute
	projectAttrs map[int64]map[string]string
	jobs         map[string]models.Job

	nextID int64

	// FailSaveMatches, when set, is returned by SaveMatches.
	FailSaveMatches error
	// LaunchPageCalls records the afterID of every FindLaunchIDs call.
	LaunchPageCalls []int64
}

func New() *MemStore {
	return &MemStore{
		launches:     make(map[int64]models.Launch),
		items:        make(map[int64]models.TestItem),
		logs:         make(map[int64]models.Log),
		templates:    make(map[int64]models.PatternTemplate),
		matches:      make(map[models.PatternMatch]struct{}),
		clusters:     make(map[int64]models.Cluster),
		clusterItems: make(map[models.ClusterTestItem]struct{}),
		projectAttrs: make(map[int64]map[string]string),
		jobs:         make(map[string]models.Job),
	}
}

func (s *MemStore) id(given int64) int64 {
	if given != 0 {
		if given > s.nextID {
			s.nextID = given
		}
		return given
	}
	s.nextID++
	return s.nextID
}

// AddLaunch stores l, assigning an id when l.ID is zero.
func (s *MemStore) AddLaunch(l models.Launch) models.Launch {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id(l.ID)
	s.launches[l.ID] = l
	return l
}

// AddItem stores it. An empty Path is derived from the parent.
func (s *MemStore) AddItem(it models.TestItem) models.TestItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.ID = s.id(it.ID)
	if it.Path == "" {
		it.Path = strconv.FormatInt(it.ID, 10)
		if it.ParentID != nil {
			if parent, ok := s.items[*it.ParentID]; ok {
				it.Path = parent.Path + "." + it.Path
				parent.HasChildren = true
				s.items[parent.ID] = parent
			}
		}
	}
	if it.Issue != nil {
		issue := *it.Issue
		issue.ItemID = it.ID
		it.Issue = &issue
	}
	s.items[it.ID] = it
	return it
}

func (s *MemStore) AddLog(l models.Log) models.Log {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id(l.ID)
	s.logs[l.ID] = l
	return l
}

func (s *MemStore) AddTemplate(t models.PatternTemplate) models.PatternTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id(t.ID)
	s.templates[t.ID] = t
	return t
}

// Matches returns every stored pattern match ordered by template then item.
func (s *MemStore) Matches() []models.PatternMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PatternMatch, 0, len(s.matches))
	for m := range s.matches {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PatternTemplateID != out[j].PatternTemplateID {
			return out[i].PatternTemplateID < out[j].PatternTemplateID
		}
		return out[i].TestItemID < out[j].TestItemID
	})
	return out
}

func (s *MemStore) Log(id int64) (models.Log, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[id]
	return l, ok
}

func copyItem(it models.TestItem) models.TestItem {
	if it.Issue != nil {
		issue := *it.Issue
		it.Issue = &issue
	}
	return it
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func sortedKeys(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *MemStore) GetLaunch(_ context.Context, launchID int64) (*models.Launch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.launches[launchID]
	if !ok {
		return nil, apperr.NotFound("launch", launchID)
	}
	return &l, nil
}

func (s *MemStore) FindLaunchIDs(_ context.Context, projectID int64, excludeMode models.LaunchMode, excludeStatus models.Status, afterID int64, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LaunchPageCalls = append(s.LaunchPageCalls, afterID)

	set := make(map[int64]struct{})
	for _, l := range s.launches {
		if l.ProjectID != projectID || l.ID <= afterID || l.Mode == excludeMode || l.Status == excludeStatus {
			continue
		}
		set[l.ID] = struct{}{}
	}
	ids := sortedKeys(set)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemStore) launchItems(launchID int64) []models.TestItem {
	var out []models.TestItem
	for _, it := range s.items {
		if it.LaunchID == launchID {
			out = append(out, copyItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) FindItemIDsByLaunch(_ context.Context, launchID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for _, it := range s.launchItems(launchID) {
		ids = append(ids, it.ID)
	}
	return ids, nil
}

func (s *MemStore) FindItemIDsByModes(_ context.Context, launchID int64, modes []models.AnalyzeItemsMode, offset, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, it := range s.launchItems(launchID) {
		for _, m := range modes {
			if it.MatchesMode(m) {
				ids = append(ids, it.ID)
				break
			}
		}
	}
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemStore) FindDescendantIDs(_ context.Context, path string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[int64]struct{})
	for _, it := range s.items {
		if strings.HasPrefix(it.Path, path+".") {
			set[it.ID] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *MemStore) FindItemsByIDs(_ context.Context, itemIDs []int64) ([]models.TestItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TestItem
	for _, id := range sortedKeys(idSet(itemIDs)) {
		if it, ok := s.items[id]; ok {
			out = append(out, copyItem(it))
		}
	}
	return out, nil
}

func (s *MemStore) FindItemsByLaunch(_ context.Context, launchID int64) ([]models.TestItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launchItems(launchID), nil
}

func (s *MemStore) FindItemName(_ context.Context, itemID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemID]
	if !ok {
		return "", apperr.NotFound("test item", itemID)
	}
	return it.Name, nil
}

func (s *MemStore) UpdateIssue(_ context.Context, issue models.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[issue.ItemID]
	if !ok {
		return apperr.NotFound("test item", issue.ItemID)
	}
	it.Issue = &issue
	s.items[it.ID] = it
	return nil
}

func (s *MemStore) FilterLaunchesWithLogs(_ context.Context, launchIDs []int64, floor models.LogLevel) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := idSet(launchIDs)
	found := make(map[int64]struct{})
	for _, l := range s.logs {
		if _, ok := wanted[l.LaunchID]; ok && l.Level >= floor {
			found[l.LaunchID] = struct{}{}
		}
	}
	return sortedKeys(found), nil
}

func (s *MemStore) itemLogs(itemIDs []int64, floor models.LogLevel) []models.Log {
	wanted := idSet(itemIDs)
	var out []models.Log
	for _, l := range s.logs {
		if l.ItemID == nil || l.Level < floor {
			continue
		}
		if _, ok := wanted[*l.ItemID]; ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) FindLogsByItemIDs(_ context.Context, itemIDs []int64, floor models.LogLevel) ([]models.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemLogs(itemIDs, floor), nil
}

func (s *MemStore) FindLogsByIDs(_ context.Context, logIDs []int64) ([]models.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Log
	for _, id := range sortedKeys(idSet(logIDs)) {
		if l, ok := s.logs[id]; ok {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *MemStore) selectItemIDs(itemIDs []int64, floor models.LogLevel, match func(string) bool) []int64 {
	found := make(map[int64]struct{})
	for _, l := range s.itemLogs(itemIDs, floor) {
		if match(l.Message) {
			found[*l.ItemID] = struct{}{}
		}
	}
	return sortedKeys(found)
}

func (s *MemStore) SelectItemIDsByString(_ context.Context, itemIDs []int64, floor models.LogLevel, substr string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectItemIDs(itemIDs, floor, func(m string) bool { return strings.Contains(m, substr) }), nil
}

func (s *MemStore) SelectItemIDsByRegex(_ context.Context, itemIDs []int64, floor models.LogLevel, pattern string) ([]int64, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apperr.Validation("invalid pattern %q: %v", pattern, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectItemIDs(itemIDs, floor, re.MatchString), nil
}

func (s *MemStore) AssignCluster(_ context.Context, logIDs []int64, clusterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range logIDs {
		if l, ok := s.logs[id]; ok {
			cid := clusterID
			l.ClusterID = &cid
			s.logs[id] = l
		}
	}
	return nil
}

func (s *MemStore) FindEnabledTemplates(_ context.Context, projectID int64) ([]models.PatternTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PatternTemplate
	for _, t := range s.templates {
		if t.ProjectID == projectID && t.Enabled {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) FindAlreadyMatched(_ context.Context, patternID int64, itemIDs []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := make(map[int64]struct{})
	for _, id := range itemIDs {
		if _, ok := s.matches[models.PatternMatch{PatternTemplateID: patternID, TestItemID: id}]; ok {
			found[id] = struct{}{}
		}
	}
	return sortedKeys(found), nil
}

func (s *MemStore) SaveMatches(_ context.Context, matches []models.PatternMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaveMatches != nil {
		return s.FailSaveMatches
	}
	for _, m := range matches {
		s.matches[models.PatternMatch{PatternTemplateID: m.PatternTemplateID, TestItemID: m.TestItemID}] = struct{}{}
	}
	return nil
}

func (s *MemStore) DeleteClustersByLaunch(_ context.Context, launchID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, c := range s.clusters {
		if c.LaunchID != launchID {
			continue
		}
		delete(s.clusters, id)
		deleted++
		for link := range s.clusterItems {
			if link.ClusterID == id {
				delete(s.clusterItems, link)
			}
		}
	}
	for id, l := range s.logs {
		if l.LaunchID == launchID && l.ClusterID != nil {
			l.ClusterID = nil
			s.logs[id] = l
		}
	}
	return deleted, nil
}

func (s *MemStore) SaveCluster(_ context.Context, cluster *models.Cluster, itemIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cluster.ID = s.id(cluster.ID)
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = time.Now()
	}
	s.clusters[cluster.ID] = *cluster
	for _, id := range itemIDs {
		s.clusterItems[models.ClusterTestItem{ClusterID: cluster.ID, ItemID: id}] = struct{}{}
	}
	return nil
}

func (s *MemStore) FindClustersByLaunch(_ context.Context, launchID int64) ([]models.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Cluster
	for _, c := range s.clusters {
		if c.LaunchID == launchID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IndexID < out[j].IndexID })
	return out, nil
}

// ClusterItemIDs returns the items linked to a cluster.
func (s *MemStore) ClusterItemIDs(clusterID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := make(map[int64]struct{})
	for link := range s.clusterItems {
		if link.ClusterID == clusterID {
			found[link.ItemID] = struct{}{}
		}
	}
	return sortedKeys(found)
}

func (s *MemStore) SetLaunchAttribute(_ context.Context, launchID int64, key, value string, system bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.attributes {
		if a.LaunchID != nil && *a.LaunchID == launchID && a.Key == key {
			s.attributes[i].Value = value
			s.attributes[i].System = system
			s.attributes[i].UpdatedAt = time.Now()
			return nil
		}
	}
	id := launchID
	s.attributes = append(s.attributes, models.ItemAttribute{
		ID:        s.id(0),
		LaunchID:  &id,
		Key:       key,
		Value:     value,
		System:    system,
		UpdatedAt: time.Now(),
	})
	return nil
}

func (s *MemStore) FindLaunchAttribute(_ context.Context, launchID int64, key string) (*models.ItemAttribute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attributes {
		if a.LaunchID != nil && *a.LaunchID == launchID && a.Key == key {
			attr := a
			return &attr, nil
		}
	}
	return nil, apperr.NotFound("launch attribute", key)
}

func (s *MemStore) ProjectAttributes(_ context.Context, projectID int64) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.projectAttrs[projectID]))
	for k, v := range s.projectAttrs[projectID] {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) SetProjectAttribute(_ context.Context, projectID int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projectAttrs[projectID] == nil {
		s.projectAttrs[projectID] = make(map[string]string)
	}
	s.projectAttrs[projectID][key] = value
	return nil
}

func (s *MemStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemStore) UpdateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return apperr.NotFound("job", job.ID)
	}
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemStore) GetJob(_ context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, apperr.NotFound("job", id)
	}
	return &job, nil
}
