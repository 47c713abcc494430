// Package dynamo implements an archive.Catalog on DynamoDB.
//
// Each catalog is a series of items under one partition key. Appends
// claim the next sequence number with a conditional write, so concurrent
// writers never overwrite each other; the loser gets
// archive.ErrConcurrentAppend.
//
// Table schema:
//   - Partition key: series (string)
//   - Sort key: sequence (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name ensemble-runs \
//	  --attribute-definitions AttributeName=series,AttributeType=S AttributeName=sequence,AttributeType=N \
//	  --key-schema AttributeName=series,KeyType=HASH AttributeName=sequence,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/hupe1980/ensemble/archive"
)

// DDBClient is the subset of *dynamodb.Client the catalog uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Catalog implements archive.Catalog.
type Catalog struct {
	client DDBClient
	table  string
	series string
}

var _ archive.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog writing to table under the partition key
// series.
func NewCatalog(client DDBClient, table, series string) *Catalog {
	return &Catalog{client: client, table: table, series: series}
}

// Append stores e under the next sequence number.
func (c *Catalog) Append(ctx context.Context, e archive.Entry) (archive.Entry, error) {
	last, err := c.latest(ctx)
	if err != nil {
		return archive.Entry{}, err
	}
	e.Sequence = last + 1

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                c.item(e),
		ConditionExpression: aws.String("attribute_not_exists(#seq)"),
		ExpressionAttributeNames: map[string]string{
			"#seq": "sequence",
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return archive.Entry{}, archive.ErrConcurrentAppend
		}
		return archive.Entry{}, fmt.Errorf("dynamo: put entry %d: %w", e.Sequence, err)
	}
	return e, nil
}

// Entries returns the whole series in sequence order.
func (c *Catalog) Entries(ctx context.Context) ([]archive.Entry, error) {
	var entries []archive.Entry

	paginator := dynamodb.NewQueryPaginator(c.client, c.query(true, 0))
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query entries: %w", err)
		}
		for _, item := range page.Items {
			e, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (c *Catalog) latest(ctx context.Context) (uint64, error) {
	resp, err := c.client.Query(ctx, c.query(false, 1))
	if err != nil {
		return 0, fmt.Errorf("dynamo: query latest: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, nil
	}
	e, err := decodeItem(resp.Items[0])
	if err != nil {
		return 0, err
	}
	return e.Sequence, nil
}

func (c *Catalog) query(ascending bool, limit int32) *dynamodb.QueryInput {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("#series = :series"),
		ExpressionAttributeNames: map[string]string{
			"#series": "series",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":series": &types.AttributeValueMemberS{Value: c.series},
		},
		ScanIndexForward: aws.Bool(ascending),
		ConsistentRead:   aws.Bool(true),
	}
	if limit > 0 {
		in.Limit = aws.Int32(limit)
	}
	return in
}

func (c *Catalog) item(e archive.Entry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"series":     &types.AttributeValueMemberS{Value: c.series},
		"sequence":   number(int64(e.Sequence)),
		"id":         &types.AttributeValueMemberS{Value: e.ID.String()},
		"key":        &types.AttributeValueMemberS{Value: e.Key},
		"algorithm":  &types.AttributeValueMemberS{Value: e.Algorithm},
		"items":      number(int64(e.Items)),
		"clusters":   number(int64(e.Clusters)),
		"noise":      number(int64(e.Noise)),
		"created_at": &types.AttributeValueMemberS{Value: e.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func number(v int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func decodeItem(item map[string]types.AttributeValue) (archive.Entry, error) {
	var (
		e   archive.Entry
		err error
	)

	str := func(name string) string {
		if err != nil {
			return ""
		}
		v, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			err = fmt.Errorf("dynamo: invalid %s attribute", name)
			return ""
		}
		return v.Value
	}
	num := func(name string) int64 {
		if err != nil {
			return 0
		}
		v, ok := item[name].(*types.AttributeValueMemberN)
		if !ok {
			err = fmt.Errorf("dynamo: invalid %s attribute", name)
			return 0
		}
		n, perr := strconv.ParseInt(v.Value, 10, 64)
		if perr != nil {
			err = fmt.Errorf("dynamo: parse %s: %w", name, perr)
		}
		return n
	}

	e.Sequence = uint64(num("sequence"))
	id := str("id")
	e.Key = str("key")
	e.Algorithm = str("algorithm")
	e.Items = int(num("items"))
	e.Clusters = int(num("clusters"))
	e.Noise = int(num("noise"))
	created := str("created_at")
	if err != nil {
		return archive.Entry{}, err
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return archive.Entry{}, fmt.Errorf("dynamo: parse id: %w", err)
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return archive.Entry{}, fmt.Errorf("dynamo: parse created_at: %w", err)
	}
	return e, nil
}
