package model

// Article is one record from the news source. The service never looks inside
// it: title, url, section, published_date and whatever else the wire API
// sends are passed through untouched, so a plain map is enough.
type Article map[string]any

// ArticleBatch is the ordered list of articles returned by one fetch.
type ArticleBatch []Article
