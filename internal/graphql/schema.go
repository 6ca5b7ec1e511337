package graphql

import (
	"context"
	"fmt"

	gql "github.com/graphql-go/graphql"

	"shrike/internal/adminsearch"
	"shrike/internal/api/dto"
	"shrike/internal/database"
	"shrike/internal/domain"
)

type viewerData struct {
	user domain.User
}

func NewSchema() (gql.Schema, error) {
	moderationStatsType := gql.NewObject(gql.ObjectConfig{
		Name: "ModerationStats",
		Fields: gql.Fields{
			"openJobs":        &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"decidedJobs":     &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"totalReports":    &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"reportsLastWeek": &gql.Field{Type: gql.NewNonNull(gql.Int)},
		},
	})

	moderationJobType := gql.NewObject(gql.ObjectConfig{
		Name: "ModerationJob",
		Fields: gql.Fields{
			"id":             &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"jobId":          &gql.Field{Type: gql.NewNonNull(gql.String)},
			"targetGuid":     &gql.Field{Type: gql.NewNonNull(gql.String)},
			"decisionAction": &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"decisionLabel":  &gql.Field{Type: gql.NewNonNull(gql.String)},
			"decisionDate":   &gql.Field{Type: gql.DateTime},
			"reportCount":    &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"createdAt":      &gql.Field{Type: gql.DateTime},
		},
	})

	moderationJobPageType := gql.NewObject(gql.ObjectConfig{
		Name: "ModerationJobPage",
		Fields: gql.Fields{
			"page":       &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"pageSize":   &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"totalCount": &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"items":      &gql.Field{Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(moderationJobType)))},
		},
	})

	abuseReportType := gql.NewObject(gql.ObjectConfig{
		Name: "AbuseReport",
		Fields: gql.Fields{
			"id":            &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"guid":          &gql.Field{Type: gql.NewNonNull(gql.String)},
			"message":       &gql.Field{Type: gql.NewNonNull(gql.String)},
			"reporterName":  &gql.Field{Type: gql.NewNonNull(gql.String)},
			"reporterEmail": &gql.Field{Type: gql.NewNonNull(gql.String)},
			"knownIps":      &gql.Field{Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(gql.String)))},
			"appealDate":    &gql.Field{Type: gql.DateTime},
			"createdAt":     &gql.Field{Type: gql.DateTime},
		},
	})

	abuseReportPageType := gql.NewObject(gql.ObjectConfig{
		Name: "AbuseReportPage",
		Fields: gql.Fields{
			"page":       &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"pageSize":   &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"totalCount": &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"items":      &gql.Field{Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(abuseReportType)))},
		},
	})

	viewerType := gql.NewObject(gql.ObjectConfig{
		Name: "Viewer",
		Fields: gql.Fields{
			"id": &gql.Field{
				Type: gql.NewNonNull(gql.ID),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if data, ok := p.Source.(*viewerData); ok {
						return fmt.Sprintf("%d", data.user.ID), nil
					}
					return nil, nil
				},
			},
			"email": &gql.Field{
				Type: gql.NewNonNull(gql.String),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if data, ok := p.Source.(*viewerData); ok {
						return data.user.Email, nil
					}
					return nil, nil
				},
			},
			"username": &gql.Field{
				Type: gql.NewNonNull(gql.String),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if data, ok := p.Source.(*viewerData); ok {
						return data.user.Username, nil
					}
					return nil, nil
				},
			},
			"role": &gql.Field{
				Type: gql.NewNonNull(gql.String),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if data, ok := p.Source.(*viewerData); ok {
						return data.user.Role, nil
					}
					return nil, nil
				},
			},
			"permissions": &gql.Field{
				Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(gql.String))),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if data, ok := p.Source.(*viewerData); ok {
						return []string(data.user.Permissions), nil
					}
					return []string{}, nil
				},
			},
			"moderationStats": &gql.Field{
				Type: gql.NewNonNull(moderationStatsType),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					data, ok := p.Source.(*viewerData)
					if !ok {
						return nil, nil
					}
					if !data.user.HasPermission(domain.PermAbuseView) {
						return nil, ErrForbidden
					}
					stats, err := database.GetModerationStats()
					if err != nil {
						return nil, err
					}
					return buildModerationStats(stats), nil
				},
			},
			"moderationJobs": &gql.Field{
				Type: gql.NewNonNull(moderationJobPageType),
				Args: gql.FieldConfigArgument{
					"page":   &gql.ArgumentConfig{Type: gql.NewNonNull(gql.Int)},
					"search": &gql.ArgumentConfig{Type: gql.String},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					data, ok := p.Source.(*viewerData)
					if !ok {
						return nil, nil
					}
					if !data.user.HasPermission(domain.PermAbuseView) {
						return nil, ErrForbidden
					}
					page := 1
					if raw, ok := p.Args["page"].(int); ok && raw > 0 {
						page = raw
					}
					search, _ := p.Args["search"].(string)
					return buildModerationJobPage(page, search)
				},
			},
			"abuseReports": &gql.Field{
				Type: gql.NewNonNull(abuseReportPageType),
				Args: gql.FieldConfigArgument{
					"page":   &gql.ArgumentConfig{Type: gql.NewNonNull(gql.Int)},
					"search": &gql.ArgumentConfig{Type: gql.String},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					data, ok := p.Source.(*viewerData)
					if !ok {
						return nil, nil
					}
					if !data.user.HasPermission(domain.PermAbuseView) {
						return nil, ErrForbidden
					}
					page := 1
					if raw, ok := p.Args["page"].(int); ok && raw > 0 {
						page = raw
					}
					search, _ := p.Args["search"].(string)
					return buildAbuseReportPage(page, search)
				},
			},
		},
	})

	queryType := gql.NewObject(gql.ObjectConfig{
		Name: "Query",
		Fields: gql.Fields{
			"viewer": &gql.Field{
				Type: viewerType,
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					return fetchViewer(p.Context)
				},
			},
		},
	})

	mutationType := gql.NewObject(gql.ObjectConfig{
		Name: "Mutation",
		Fields: gql.Fields{
			"decideModerationJob": &gql.Field{
				Type: moderationJobType,
				Args: gql.FieldConfigArgument{
					"id":     &gql.ArgumentConfig{Type: gql.NewNonNull(gql.Int)},
					"action": &gql.ArgumentConfig{Type: gql.NewNonNull(gql.Int)},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					viewer, err := fetchViewer(p.Context)
					if err != nil {
						return nil, err
					}
					data, ok := viewer.(*viewerData)
					if !ok {
						return nil, ErrUnauthenticated
					}
					if !data.user.HasPermission(domain.PermAdminAdvanced) {
						return nil, ErrForbidden
					}

					rawID, _ := p.Args["id"].(int)
					rawAction, _ := p.Args["action"].(int)
					if rawID <= 0 || rawAction <= 0 || rawAction > 255 {
						return nil, fmt.Errorf("invalid decision arguments")
					}

					job, err := database.GetModerationJobFromId(uint64(rawID))
					if err != nil {
						return nil, err
					}
					actorID := data.user.ID
					if err := database.DecideModerationJob(&job, uint8(rawAction), &actorID, addrFromContext(p.Context)); err != nil {
						return nil, err
					}

					return buildModerationJob(job, len(job.Reports)), nil
				},
			},
		},
	})

	return gql.NewSchema(gql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func fetchViewer(ctx context.Context) (interface{}, error) {
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	user, err := database.GetUserFromId(userID)
	if err != nil {
		return nil, fmt.Errorf("user %d not found", userID)
	}

	return &viewerData{user: user}, nil
}

func buildModerationStats(stats dto.ModerationStats) map[string]interface{} {
	return map[string]interface{}{
		"openJobs":        int(stats.OpenJobs),
		"decidedJobs":     int(stats.DecidedJobs),
		"totalReports":    int(stats.TotalReports),
		"reportsLastWeek": int(stats.ReportsLastWeek),
	}
}

func buildModerationJob(job domain.ModerationJob, reportCount int) map[string]interface{} {
	item := map[string]interface{}{
		"id":             int(job.ID),
		"jobId":          job.JobID,
		"targetGuid":     job.TargetGUID,
		"decisionAction": int(job.DecisionAction),
		"decisionLabel":  domain.DecisionLabel(job.DecisionAction),
		"reportCount":    reportCount,
		"createdAt":      job.CreatedAt,
	}
	if job.DecisionDate != nil {
		item["decisionDate"] = *job.DecisionDate
	}
	return item
}

func buildModerationJobPage(page int, search string) (map[string]interface{}, error) {
	result, err := database.GetModerationJobPage(page, 0, search)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(result.Jobs))
	for _, job := range result.Jobs {
		item := map[string]interface{}{
			"id":             int(job.Id),
			"jobId":          job.JobID,
			"targetGuid":     job.TargetGUID,
			"decisionAction": int(job.DecisionAction),
			"decisionLabel":  job.DecisionLabel,
			"reportCount":    job.ReportCount,
			"createdAt":      job.CreatedAt,
		}
		if job.DecisionDate != nil {
			item["decisionDate"] = *job.DecisionDate
		}
		items = append(items, item)
	}

	return map[string]interface{}{
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalCount": int(result.Total),
		"items":      items,
	}, nil
}

func buildAbuseReportPage(page int, search string) (map[string]interface{}, error) {
	result, err := database.GetAbuseReportPage(page, 0, search, adminsearch.DateRange{})
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(result.Reports))
	for _, report := range result.Reports {
		item := map[string]interface{}{
			"id":            int(report.Id),
			"guid":          report.GUID,
			"message":       report.Message,
			"reporterName":  report.ReporterName,
			"reporterEmail": report.ReporterEmail,
			"knownIps":      report.KnownIPAddresses,
			"createdAt":     report.CreatedAt,
		}
		if report.AppealDate != nil {
			item["appealDate"] = *report.AppealDate
		}
		items = append(items, item)
	}

	return map[string]interface{}{
		"page":       result.Page,
		"pageSize":   result.PageSize,
		"totalCount": int(result.Total),
		"items":      items,
	}, nil
}
