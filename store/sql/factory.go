package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every syndication store over one bun handle.
type RepositoryFactory struct {
	db *bun.DB

	siteStore            *SiteStore
	distributionStore    *DistributionStore
	webhookEventStore    *WebhookEventStore
	jobQueueStore        *JobQueueStore
	complianceAlertStore *ComplianceAlertStore

	jobQueueOptions []JobQueueOption
}

func NewRepositoryFactory(jobQueueOptions ...JobQueueOption) *RepositoryFactory {
	return &RepositoryFactory{jobQueueOptions: jobQueueOptions}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, jobQueueOptions ...JobQueueOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(jobQueueOptions...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, jobQueueOptions ...JobQueueOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(jobQueueOptions...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (*RepositoryFactory, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.siteStore != nil && f.distributionStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) SiteStore() *SiteStore {
	if f == nil {
		return nil
	}
	return f.siteStore
}

func (f *RepositoryFactory) DistributionStore() *DistributionStore {
	if f == nil {
		return nil
	}
	return f.distributionStore
}

func (f *RepositoryFactory) WebhookEventStore() *WebhookEventStore {
	if f == nil {
		return nil
	}
	return f.webhookEventStore
}

func (f *RepositoryFactory) JobQueueStore() *JobQueueStore {
	if f == nil {
		return nil
	}
	return f.jobQueueStore
}

func (f *RepositoryFactory) ComplianceAlertStore() *ComplianceAlertStore {
	if f == nil {
		return nil
	}
	return f.complianceAlertStore
}

func (f *RepositoryFactory) initStores() error {
	siteStore, err := NewSiteStore(f.db)
	if err != nil {
		return err
	}
	f.siteStore = siteStore
	distributionStore, err := NewDistributionStore(f.db)
	if err != nil {
		return err
	}
	f.distributionStore = distributionStore
	webhookEventStore, err := NewWebhookEventStore(f.db)
	if err != nil {
		return err
	}
	f.webhookEventStore = webhookEventStore
	jobQueueStore, err := NewJobQueueStore(f.db, f.jobQueueOptions...)
	if err != nil {
		return err
	}
	f.jobQueueStore = jobQueueStore
	complianceAlertStore, err := NewComplianceAlertStore(f.db)
	if err != nil {
		return err
	}
	f.complianceAlertStore = complianceAlertStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
