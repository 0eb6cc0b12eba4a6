package aiparse

// StatementPrompt asks for every transaction as a JSON array. The statement
// itself follows the prompt, either as text or as an attached PDF.
const StatementPrompt = "You are a bank statement parser.\n\n" +
	"Task:\n" +
	"- Extract ALL transactions from the bank statement provided.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n" +
	"- Output a JSON array of objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"date\": string, ISO format \"YYYY-MM-DD\"\n" +
	"- \"description\": string, the full transaction narration\n" +
	"- \"amount\": number, always positive\n" +
	"- \"type\": string, \"income\" for money in, \"expense\" for money out\n\n" +
	"Rules:\n" +
	"- Skip opening/closing balance lines and page headers.\n" +
	"- Join descriptions that wrap onto several lines.\n" +
	"- If there are no transactions, return [].\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// ReceiptPrompt asks for a single JSON object describing the receipt.
const ReceiptPrompt = "You are a receipt parser.\n\n" +
	"Task:\n" +
	"- Read the receipt provided and extract the purchase it records.\n" +
	"- Output STRICT JSON only: a single JSON object.\n\n" +
	"The object must have these fields:\n" +
	"- \"totalAmount\": number, the final amount paid, or null if unreadable\n" +
	"- \"transactionDate\": string, ISO format \"YYYY-MM-DD\", or null if absent\n" +
	"- \"description\": string, the merchant or store name\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// statementTextPrompt appends extracted statement text to StatementPrompt.
func statementTextPrompt(text string) string {
	return StatementPrompt + "\nStatement text:\n" + text
}

// receiptTextPrompt appends OCR text to ReceiptPrompt.
func receiptTextPrompt(text string) string {
	return ReceiptPrompt + "\nReceipt text:\n" + text
}
