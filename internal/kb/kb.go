// Package kb 内置的公司知识库与关键词检索。
// 文档为进程内硬编码数据，检索是大小写不敏感的包含匹配。
package kb

import (
	"fmt"
	"strings"
)

// Document 知识库文档
type Document struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// SearchResult 单条检索结果。
// 命中时填充文档字段并标记relevance；未命中时整个结果列表
// 只含一条Message提示。
type SearchResult struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content,omitempty"`
	Category  string `json:"category,omitempty"`
	Relevance string `json:"relevance,omitempty"`
	Message   string `json:"message,omitempty"`
}

// entry 保持文档的固定顺序，检索结果顺序可复现
type entry struct {
	id  string
	doc Document
}

var knowledgeBase = []entry{
	{"company_policy", Document{
		Title:    "Company Policy Document",
		Content:  "Our company follows strict guidelines for remote work. Employees must be available during core hours 10 AM to 3 PM. All meetings should be scheduled in advance.",
		Category: "HR",
	}},
	{"product_specs", Document{
		Title:    "Product Specifications",
		Content:  "Our main product supports 1000+ concurrent users, has 99.9% uptime, and includes real-time analytics dashboard with custom reporting features.",
		Category: "Technical",
	}},
	{"pricing_info", Document{
		Title:    "Pricing Information",
		Content:  "Basic plan: $29/month, Pro plan: $99/month, Enterprise: Custom pricing. All plans include 24/7 support and free onboarding.",
		Category: "Sales",
	}},
	{"employee_benefits", Document{
		Title:    "Employee Benefits Package",
		Content:  "Comprehensive health insurance including medical, dental, and vision coverage. Additional benefits include 401k matching, flexible PTO, and professional development budget of $2000 annually.",
		Category: "HR",
	}},
	{"it_support", Document{
		Title:    "IT Support Procedures",
		Content:  "For technical issues, contact IT support via helpdesk portal or email support@company.com. Response time: Critical issues within 2 hours, standard issues within 24 hours.",
		Category: "Technical",
	}},
	{"onboarding_process", Document{
		Title:    "Employee Onboarding Process",
		Content:  "New hires complete orientation and training in the first week. Includes IT setup, HR documentation, department introductions, and mentor assignment.",
		Category: "HR",
	}},
	{"data_privacy", Document{
		Title:    "Data Privacy and Security Policy",
		Content:  "All customer data is encrypted at rest and in transit. We comply with GDPR, CCPA, and SOC 2 Type II standards. Regular security audits are conducted quarterly.",
		Category: "Legal",
	}},
	{"customer_service", Document{
		Title:    "Customer Service Guidelines",
		Content:  "Always respond to customer inquiries within 24 hours. Escalate complex issues to senior support. Maintain professional tone and provide detailed solutions.",
		Category: "Customer Service",
	}},
	{"sales_commission", Document{
		Title:    "Sales Commission Structure",
		Content:  "Sales representatives earn 10% commission on all new sales, 5% on renewals. Quarterly bonuses available for exceeding targets. Commission paid monthly.",
		Category: "Sales",
	}},
	{"expense_policy", Document{
		Title:    "Expense Reimbursement Policy",
		Content:  "Submit receipts within 30 days for reimbursement. Approved expenses include travel, meals (up to $50/day), and business supplies. Use expense management system for submissions.",
		Category: "Finance",
	}},
	{"product_warranty", Document{
		Title:    "Product Warranty Information",
		Content:  "All products come with a comprehensive one-year warranty covering defects and performance issues. Extended warranty options available for enterprise customers.",
		Category: "Technical",
	}},
	{"travel_policy", Document{
		Title:    "Business Travel Policy",
		Content:  "Employees must get pre-approval for business travel exceeding $500. Book through approved travel agency. Economy class for domestic, business class for international flights over 6 hours.",
		Category: "Finance",
	}},
	{"performance_review", Document{
		Title:    "Performance Review Process",
		Content:  "Annual performance reviews conducted in Q4. Includes goal setting, 360-degree feedback, and development planning. Mid-year check-ins scheduled in Q2.",
		Category: "HR",
	}},
	{"it_security", Document{
		Title:    "IT Security Requirements",
		Content:  "All employees must use multi-factor authentication for system access. VPN required for remote work. Password policy: minimum 12 characters with complexity requirements.",
		Category: "Technical",
	}},
	{"holiday_schedule", Document{
		Title:    "Company Holiday Schedule",
		Content:  "Company observes all federal holidays plus additional floating holidays. Total of 12 paid holidays annually. Holiday calendar published at beginning of each year.",
		Category: "HR",
	}},
	{"code_of_conduct", Document{
		Title:    "Employee Code of Conduct",
		Content:  "Maintain professionalism and respect in all interactions. Zero tolerance for harassment or discrimination. Report violations to HR immediately. Annual ethics training required.",
		Category: "HR",
	}},
	{"api_documentation", Document{
		Title:    "API Integration Guide",
		Content:  "RESTful API with OAuth 2.0 authentication. Rate limits: 1000 requests per hour. Comprehensive documentation available at docs.company.com with code examples.",
		Category: "Technical",
	}},
	{"marketing_guidelines", Document{
		Title:    "Brand and Marketing Guidelines",
		Content:  "Focus on digital channels and social media engagement. Brand colors: Primary blue #0066CC, Secondary gray #666666. All marketing materials require brand team approval.",
		Category: "Marketing",
	}},
	{"customer_feedback", Document{
		Title:    "Customer Feedback Process",
		Content:  "Collect and analyze customer feedback monthly through surveys and support interactions. NPS target: 50+. Feedback reviewed in monthly customer success meetings.",
		Category: "Customer Service",
	}},
	{"workplace_safety", Document{
		Title:    "Workplace Safety Guidelines",
		Content:  "Follow OSHA guidelines to maintain a safe work environment. Emergency procedures posted in all areas. Monthly safety training required. Report incidents immediately to facilities team.",
		Category: "Safety",
	}},
}

// Search 在知识库中做关键词包含匹配，命中标题/正文/分类任一即返回。
// 无命中时返回一条提示消息而不是空列表。
func Search(query string) []SearchResult {
	searchTerm := strings.ToLower(query)

	var results []SearchResult
	for _, e := range knowledgeBase {
		if strings.Contains(strings.ToLower(e.doc.Title), searchTerm) ||
			strings.Contains(strings.ToLower(e.doc.Content), searchTerm) ||
			strings.Contains(strings.ToLower(e.doc.Category), searchTerm) {
			results = append(results, SearchResult{
				ID:        e.id,
				Title:     e.doc.Title,
				Content:   e.doc.Content,
				Category:  e.doc.Category,
				Relevance: "high",
			})
		}
	}

	if len(results) == 0 {
		return []SearchResult{{
			Message: fmt.Sprintf("No documents found for %q. Available topics: company policy, product specs, pricing info", query),
		}}
	}
	return results
}

// Size 知识库文档总数
func Size() int {
	return len(knowledgeBase)
}
