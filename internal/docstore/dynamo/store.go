// Package dynamo keeps a document hierarchy in a single DynamoDB table.
//
// Layout (partition key "pk", sort key "sk", both strings):
//
//	document:   pk = collection path     sk = document id
//	collection: pk = "#collections:" + parent document path (empty for the root)
//	            sk = collection id
//
// Document bodies are stored as tagged JSON in the "fields" attribute, so
// every supported value type round-trips. Documents that only exist because
// something below them was written carry has_data = false.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/juju/loggo/v2"

	"github.com/danieljhkim/docsnap/internal/codec"
	"github.com/danieljhkim/docsnap/internal/config"
	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

var logger = loggo.GetLogger("docsnap.docstore.dynamo")

// maxTransactItems is the DynamoDB limit on actions per transaction.
const maxTransactItems = 100

// API is the subset of the DynamoDB client used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store reads and writes documents in one table.
type Store struct {
	client API
	table  string
}

// Open builds a client from the credential blob. Keys read:
// aws_access_key_id, aws_secret_access_key, aws_session_token, region and
// endpoint_url. Without an access key the default AWS credential chain is used.
func Open(ctx context.Context, creds *config.Credentials, table string) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region := creds.String("region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if id := creds.String("aws_access_key_id"); id != "" {
		provider := credentials.NewStaticCredentialsProvider(id, creds.String("aws_secret_access_key"), creds.String("aws_session_token"))
		opts = append(opts, awsconfig.WithCredentialsProvider(provider))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := creds.String("endpoint_url")
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	logger.Debugf("using table %s in %s", table, cfg.Region)
	return New(client, table), nil
}

// New wraps an existing client.
func New(client API, table string) *Store {
	return &Store{client: client, table: table}
}

// ListCollections implements docstore.Store.
func (s *Store) ListCollections(ctx context.Context, parent storepath.Path) ([]string, error) {
	if !parent.IsRoot() && !parent.IsDocument() {
		return nil, fmt.Errorf("%w: %q is not a document", storepath.ErrInvalidPath, parent)
	}
	return s.sortKeys(ctx, collectionsPK(parent))
}

// ListDocuments implements docstore.Store.
func (s *Store) ListDocuments(ctx context.Context, collection storepath.Path) ([]string, error) {
	if !collection.IsCollection() {
		return nil, fmt.Errorf("%w: %q is not a collection", storepath.ErrInvalidPath, collection)
	}
	return s.sortKeys(ctx, collection.String())
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, doc storepath.Path) (map[string]any, error) {
	if !doc.IsDocument() {
		return nil, fmt.Errorf("%w: %q is not a document", storepath.ErrInvalidPath, doc)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            itemKey(doc.Parent().String(), doc.ID()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", doc, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", doc, docstore.ErrNotFound)
	}

	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", doc, err)
	}
	if !rec.HasData {
		return nil, fmt.Errorf("%s: %w", doc, docstore.ErrNotFound)
	}
	return rec.decode(s)
}

// Set implements docstore.Store. The document, the collection markers of
// every level and any missing ancestor documents are written in one
// transaction.
func (s *Store) Set(ctx context.Context, doc storepath.Path, data map[string]any) error {
	if !doc.IsDocument() {
		return fmt.Errorf("%w: %q is not a document", storepath.ErrInvalidPath, doc)
	}

	rec, err := newRecord(doc, data)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", doc, err)
	}

	items := []types.TransactWriteItem{{
		Put: &types.Put{TableName: aws.String(s.table), Item: item},
	}}
	for i := 0; i < len(doc); i += 2 {
		marker, err := attributevalue.MarshalMap(record{PK: collectionsPK(doc[:i]), SK: doc[i]})
		if err != nil {
			return fmt.Errorf("failed to marshal collection marker: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.table), Item: marker},
		})
		if ancestor := doc[:i+2]; len(ancestor) < len(doc) {
			items = append(items, s.ensureDocument(ancestor))
		}
	}
	if len(items) > maxTransactItems {
		return fmt.Errorf("%s is nested too deeply for a single transaction (%d writes)", doc, len(items))
	}

	if _, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("failed to set %s: %w", doc, err)
	}
	return nil
}

// Ref implements docstore.Store.
func (s *Store) Ref(doc storepath.Path) (docstore.Ref, error) {
	if !doc.IsDocument() {
		return nil, fmt.Errorf("%w: reference %q does not address a document", storepath.ErrInvalidPath, doc)
	}
	return Ref{path: append(storepath.Path(nil), doc...)}, nil
}

// ensureDocument creates an ancestor item without data unless one exists.
func (s *Store) ensureDocument(doc storepath.Path) types.TransactWriteItem {
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName:        aws.String(s.table),
			Key:              itemKey(doc.Parent().String(), doc.ID()),
			UpdateExpression: aws.String("SET #hd = if_not_exists(#hd, :no), #path = if_not_exists(#path, :path)"),
			ExpressionAttributeNames: map[string]string{
				"#hd":   "has_data",
				"#path": "path",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":no":   &types.AttributeValueMemberBOOL{Value: false},
				":path": &types.AttributeValueMemberS{Value: doc.String()},
			},
		},
	}
}

// sortKeys returns the sort keys stored under pk in order.
func (s *Store) sortKeys(ctx context.Context, pk string) ([]string, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ProjectionExpression:     aws.String("#sk"),
		ExpressionAttributeNames: map[string]string{"#pk": "pk", "#sk": "sk"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	}

	var keys []string
	paginator := dynamodb.NewQueryPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query %q: %w", pk, err)
		}
		for _, raw := range page.Items {
			var rec record
			if err := attributevalue.UnmarshalMap(raw, &rec); err != nil {
				return nil, fmt.Errorf("failed to unmarshal key under %q: %w", pk, err)
			}
			keys = append(keys, rec.SK)
		}
	}
	return keys, nil
}

// Ref is a reference into a Store. Paths are the only identity a table row
// has, so any two Refs with the same path are interchangeable.
type Ref struct {
	path storepath.Path
}

// Path implements docstore.Ref.
func (r Ref) Path() storepath.Path {
	return r.path
}

var _ codec.RefBinder = (*Store)(nil)
