package headhunter

import (
	"context"
	"fmt"
	"net/url"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

const (
	SearchPath = "/vacancies"
)

// SearchParams mirrors the /vacancies query. The yaml tag doubles as the query key;
// hhparam overrides it for repeated parameters.
type SearchParams struct {
	Text string `yaml:"text" mapstructure:"text"`
	// hhparam is custom tag for reflect. Please see below.
	Areas          []int    `hhparam:"area" mapstructure:"areas"`
	OrderBy        string   `yaml:"order_by" mapstructure:"order_by"`
	Employer       uint     `yaml:"employer_id" mapstructure:"employer_id"`
	SearchField    string   `yaml:"search_field" mapstructure:"search_field"`
	Schedules      []string `hhparam:"schedule" mapstructure:"schedules"`
	PerPage        int      `yaml:"per_page" mapstructure:"per_page"`
	Experience     string   `yaml:"experience" mapstructure:"experience"`
	Period         uint     `yaml:"period" mapstructure:"period"`
	Salary         int      `yaml:"salary" mapstructure:"salary"`
	OnlyWithSalary bool     `yaml:"only_with_salary" mapstructure:"only_with_salary"`
}

// Search returns vacancies from up to maxPages result pages.
func (c *Client) Search(ctx context.Context, params *SearchParams, maxPages int) (*Vacancies, error) {
	var vacancies []*Vacancy

	p := *params
	if p.PerPage <= 0 || p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}

	q := buildParams(&p)
	apiURLSearch := fmt.Sprintf("%s%s", c.APIURL, SearchPath)

	items, err := c.GetItems(ctx, apiURLSearch, q, maxPages)
	if err != nil {
		return nil, err
	}

	cfg := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           &vacancies,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(items); err != nil {
		return nil, fmt.Errorf("decode vacancies: %w", err)
	}

	return &Vacancies{
		Items: vacancies,
	}, nil
}

func buildParams(params *SearchParams) url.Values {
	q := url.Values{}
	fields := reflect.VisibleFields(reflect.TypeOf(*params))
	for _, field := range fields {
		// Our custom tag is using here.
		key := field.Tag.Get("hhparam")
		if key == "" {
			// Failover to default tag if our tag do not exist.
			key = field.Tag.Get("yaml")
		}
		value := reflect.ValueOf(params).Elem().Field(field.Index[0])

		switch v := value.Interface().(type) {
		case []int:
			for _, item := range v {
				q.Add(key, strconv.Itoa(item))
			}
		case []string:
			for _, item := range v {
				q.Add(key, item)
			}
		default:
			s := fmt.Sprintf("%v", v)
			if s != "" && s != "0" && s != "false" {
				q.Set(key, s)
			}
		}
	}

	return q
}
