package service

import (
	"context"
	"fmt"

	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

/*
populator expands stored references into summaries.

Documents keep relationships as ObjectIDs. A response needs names, so every
read gathers the ids of all the documents it is about to return and loads the
users in ONE query, then stitches the summaries back in. A list of 50 events
costs two queries, not 51.

A reference to a user that no longer exists is dropped from lists. A missing
creator or requester keeps its id with empty name and email.
*/
type populator struct {
	users repository.UserRepository
}

type userIndex map[primitive.ObjectID]model.UserSummary

func (p populator) load(ctx context.Context, ids ...[]primitive.ObjectID) (userIndex, error) {
	unique := model.UniqueIDs(ids...)
	idx := make(userIndex, len(unique))
	if len(unique) == 0 {
		return idx, nil
	}
	summaries, err := p.users.Summaries(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("loading user summaries: %w", err)
	}
	for _, s := range summaries {
		idx[s.ID] = s
	}
	return idx, nil
}

func (idx userIndex) one(id primitive.ObjectID) model.UserSummary {
	if s, ok := idx[id]; ok {
		return s
	}
	return model.UserSummary{ID: id}
}

// list keeps the order of ids.
func (idx userIndex) list(ids []primitive.ObjectID) []model.UserSummary {
	out := make([]model.UserSummary, 0, len(ids))
	for _, id := range ids {
		if s, ok := idx[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (p populator) events(ctx context.Context, events []model.Event) ([]model.EventView, error) {
	refs := make([][]primitive.ObjectID, 0, len(events)+1)
	creators := make([]primitive.ObjectID, 0, len(events))
	for _, e := range events {
		creators = append(creators, e.Creator)
		refs = append(refs, e.Participants)
	}
	refs = append(refs, creators)

	idx, err := p.load(ctx, refs...)
	if err != nil {
		return nil, err
	}

	views := make([]model.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, model.EventView{
			ID:              e.ID,
			Title:           e.Title,
			Description:     e.Description,
			Date:            e.Date,
			Location:        e.Location,
			Category:        e.Category,
			Status:          e.Status,
			Creator:         idx.one(e.Creator),
			Participants:    idx.list(e.Participants),
			MaxParticipants: e.MaxParticipants,
			CreatedAt:       e.CreatedAt,
			UpdatedAt:       e.UpdatedAt,
		})
	}
	return views, nil
}

func (p populator) event(ctx context.Context, e *model.Event) (*model.EventView, error) {
	views, err := p.events(ctx, []model.Event{*e})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (p populator) teams(ctx context.Context, teams []model.Team) ([]model.TeamView, error) {
	refs := make([][]primitive.ObjectID, 0, len(teams)+1)
	creators := make([]primitive.ObjectID, 0, len(teams))
	for _, t := range teams {
		creators = append(creators, t.Creator)
		refs = append(refs, t.MemberIDs())
	}
	refs = append(refs, creators)

	idx, err := p.load(ctx, refs...)
	if err != nil {
		return nil, err
	}

	views := make([]model.TeamView, 0, len(teams))
	for _, t := range teams {
		members := make([]model.TeamMemberView, 0, len(t.Members))
		for _, m := range t.Members {
			s, ok := idx[m.User]
			if !ok {
				continue
			}
			members = append(members, model.TeamMemberView{User: s, Role: m.Role, JoinedAt: m.JoinedAt})
		}
		views = append(views, model.TeamView{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Category:    t.Category,
			IsPrivate:   t.IsPrivate,
			Creator:     idx.one(t.Creator),
			Members:     members,
			CreatedAt:   t.CreatedAt,
			UpdatedAt:   t.UpdatedAt,
		})
	}
	return views, nil
}

func (p populator) team(ctx context.Context, t *model.Team) (*model.TeamView, error) {
	views, err := p.teams(ctx, []model.Team{*t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (p populator) helpRequests(ctx context.Context, reqs []model.HelpRequest) ([]model.HelpRequestView, error) {
	refs := make([][]primitive.ObjectID, 0, len(reqs)+1)
	requesters := make([]primitive.ObjectID, 0, len(reqs))
	for _, h := range reqs {
		requesters = append(requesters, h.Requester)
		refs = append(refs, h.Volunteers)
	}
	refs = append(refs, requesters)

	idx, err := p.load(ctx, refs...)
	if err != nil {
		return nil, err
	}

	views := make([]model.HelpRequestView, 0, len(reqs))
	for _, h := range reqs {
		views = append(views, model.HelpRequestView{
			ID:               h.ID,
			Title:            h.Title,
			Description:      h.Description,
			Location:         h.Location,
			UrgencyLevel:     h.UrgencyLevel,
			VolunteersNeeded: h.VolunteersNeeded,
			Volunteers:       idx.list(h.Volunteers),
			Status:           h.Status,
			Requester:        idx.one(h.Requester),
			CreatedAt:        h.CreatedAt,
			UpdatedAt:        h.UpdatedAt,
		})
	}
	return views, nil
}

func (p populator) helpRequest(ctx context.Context, h *model.HelpRequest) (*model.HelpRequestView, error) {
	views, err := p.helpRequests(ctx, []model.HelpRequest{*h})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
