package dynamo

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/danieljhkim/docsnap/internal/codec"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

const collectionsPrefix = "#collections:"

// record is one table row: a document or a collection marker.
type record struct {
	PK      string `dynamodbav:"pk"`
	SK      string `dynamodbav:"sk"`
	Path    string `dynamodbav:"path,omitempty"`
	Fields  string `dynamodbav:"fields,omitempty"`
	HasData bool   `dynamodbav:"has_data,omitempty"`
}

func newRecord(doc storepath.Path, data map[string]any) (record, error) {
	tagged, _ := codec.Encode(data)
	body, err := codec.Marshal(tagged, false)
	if err != nil {
		return record{}, fmt.Errorf("failed to encode %s: %w", doc, err)
	}
	return record{
		PK:      doc.Parent().String(),
		SK:      doc.ID(),
		Path:    doc.String(),
		Fields:  string(body),
		HasData: true,
	}, nil
}

func (r record) decode(binder codec.RefBinder) (map[string]any, error) {
	tagged, err := codec.Unmarshal([]byte(r.Fields))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", r.Path, err)
	}
	data, _ := codec.Decode(tagged, binder)
	return data, nil
}

func collectionsPK(parent storepath.Path) string {
	return collectionsPrefix + parent.String()
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}
